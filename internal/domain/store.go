package domain

import (
	"context"
	"io"
	"time"
)

// Action names a user-triggered operation.
type Action string

const (
	ActionResolve Action = "resolve"
	ActionBind    Action = "bind"
	ActionPush    Action = "push"
	ActionPull    Action = "pull"
	ActionSettle  Action = "settle"
	ActionCheck   Action = "check"
)

// ActionRecord is one row of the action audit log.
type ActionRecord struct {
	ID        int64          `json:"id"`
	Action    Action         `json:"action"`
	Vault     string         `json:"vault,omitempty"`
	Amount    string         `json:"amount,omitempty"`
	TxHashes  []string       `json:"tx_hashes,omitempty"`
	OK        bool           `json:"ok"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListOpts carries pagination and time-range filters for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditStore is an append-only log of actions and their outcomes.
type AuditStore interface {
	Log(ctx context.Context, rec ActionRecord) error
	List(ctx context.Context, opts ListOpts) ([]ActionRecord, error)
}

// ProbeCache remembers positive probe results. Vault creation is monotonic,
// so a Found entry never goes stale and is stored without expiry.
// Implementations must never store NotFound or error results.
type ProbeCache interface {
	Get(ctx context.Context, key PartitionKey) (ProbeResult, bool, error)
	Put(ctx context.Context, key PartitionKey, res ProbeResult) error
}

// LockManager hands out mutually exclusive leases keyed by string. Acquire
// returns ErrLockHeld if another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter decides whether a request for key fits within limit per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
