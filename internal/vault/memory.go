package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// MemoryProbeCache is an in-process domain.ProbeCache holding Found results
// only.
type MemoryProbeCache struct {
	mu      sync.RWMutex
	entries map[domain.PartitionKey]domain.ProbeResult
}

func NewMemoryProbeCache() *MemoryProbeCache {
	return &MemoryProbeCache{entries: make(map[domain.PartitionKey]domain.ProbeResult)}
}

func (c *MemoryProbeCache) Get(_ context.Context, key domain.PartitionKey) (domain.ProbeResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok, nil
}

func (c *MemoryProbeCache) Put(_ context.Context, key domain.PartitionKey, res domain.ProbeResult) error {
	if res.Status != domain.ProbeFound {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
	return nil
}

// LocalLocks is an in-process domain.LockManager. Leases never expire; the
// ttl argument is accepted for interface parity.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]struct{})}
}

func (l *LocalLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("vault: lock %s: %w", key, domain.ErrLockHeld)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
