package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// StatusField names a per-action status display.
type StatusField string

const (
	FieldCreate StatusField = "create"
	FieldMove   StatusField = "move"
	FieldSettle StatusField = "settle"
)

// VaultView is any display bound to "current vault". The synchronizer writes
// every successfully bound address to all registered views.
type VaultView interface {
	ShowVault(ctx context.Context, vault common.Address)
}

// StatusSink receives the human-readable outcome of each action.
type StatusSink interface {
	SetStatus(ctx context.Context, field StatusField, text string)
}
