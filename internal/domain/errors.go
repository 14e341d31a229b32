package domain

import (
	"context"
	"errors"
)

var (
	ErrWalletUnavailable   = errors.New("wallet unavailable")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMissingParentToken  = errors.New("missing parent token")
	ErrCreationFailed      = errors.New("vault creation failed")
	ErrEventMissing        = errors.New("VaultCreated event missing from receipt")
	ErrNoVaultBound        = errors.New("enter or create a vault first")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrNetwork             = errors.New("network error")
	ErrTimedOut            = errors.New("timed out waiting for confirmation")
	ErrActionInFlight      = errors.New("another action is in flight")

	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)

// kinds is ordered so that the earlier entry wins when an error chain carries
// more than one sentinel: a reverted creation reports creation_failed.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrWalletUnavailable, "wallet_unavailable"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrMarketNotFound, "market_not_found"},
	{ErrMissingParentToken, "missing_parent_token"},
	{ErrEventMissing, "event_missing"},
	{ErrCreationFailed, "creation_failed"},
	{ErrNoVaultBound, "no_vault_bound"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrTimedOut, "timed_out"},
	{ErrTransactionReverted, "transaction_reverted"},
	{ErrActionInFlight, "action_in_flight"},
	{ErrLockHeld, "lock_held"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotFound, "not_found"},
	{ErrNetwork, "network_error"},
}

// ErrorKind maps an error chain onto a short stable code used in status
// payloads, metric labels and audit rows. It returns "" for a nil error and
// "internal" for anything outside the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed_out"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}
