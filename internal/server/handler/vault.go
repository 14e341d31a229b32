package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/service"
)

// VaultActions is the session-level API the vault endpoints drive.
type VaultActions interface {
	Resolve(ctx context.Context, marketURL, parentToken string) service.ActionResult
	Bind(ctx context.Context, vaultAddr, parentFallback string) service.ActionResult
	Push(ctx context.Context, vaultAddr, amount, parentFallback string) service.ActionResult
	Pull(ctx context.Context, vaultAddr, amount, parentFallback string) service.ActionResult
	Settle(ctx context.Context, vaultAddr, amount, parentFallback string) service.ActionResult
	Check(ctx context.Context, vaultAddr, parentFallback string) service.ActionResult
	Snapshot() service.SessionSnapshot
	History(ctx context.Context, opts domain.ListOpts) ([]domain.ActionRecord, error)
}

// VaultHandler serves the session and vault action endpoints.
type VaultHandler struct {
	actions VaultActions
	logger  *slog.Logger
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(actions VaultActions, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{actions: actions, logger: logger.With(slog.String("handler", "vault"))}
}

type resolveRequest struct {
	MarketURL   string `json:"market_url"`
	ParentToken string `json:"parent_token"`
}

type bindRequest struct {
	Vault          string `json:"vault"`
	ParentFallback string `json:"parent_fallback"`
}

type amountRequest struct {
	Vault          string `json:"vault"`
	Amount         string `json:"amount"`
	ParentFallback string `json:"parent_fallback"`
}

type checkRequest struct {
	Vault          string `json:"vault"`
	ParentFallback string `json:"parent_fallback"`
}

// actionContext detaches an action from the client connection. Once an
// action may submit transactions it runs to completion even if the caller
// goes away; confirmation waits are bounded by chain.confirm_timeout.
func actionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// GetSession returns the connected account and current binding.
// GET /api/session
func (h *VaultHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.actions.Snapshot())
}

// BindVault synchronizes the session to a vault address.
// PUT /api/session/vault
func (h *VaultHandler) BindVault(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Bind(actionContext(r), req.Vault, req.ParentFallback))
}

// Resolve fetches or creates the vault for a market and parent token.
// POST /api/vault/resolve
func (h *VaultHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Resolve(actionContext(r), req.MarketURL, req.ParentToken))
}

// Push splits parent tokens into YES+NO.
// POST /api/vault/push
func (h *VaultHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Push(actionContext(r), req.Vault, req.Amount, req.ParentFallback))
}

// Pull merges YES+NO back into parent tokens.
// POST /api/vault/pull
func (h *VaultHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Pull(actionContext(r), req.Vault, req.Amount, req.ParentFallback))
}

// Settle redeems the winning outcome token.
// POST /api/vault/settle
func (h *VaultHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Settle(actionContext(r), req.Vault, req.Amount, req.ParentFallback))
}

// Check reports the vault's resolution state.
// POST /api/vault/check
func (h *VaultHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, h.actions.Check(actionContext(r), req.Vault, req.ParentFallback))
}

// ListActions returns the audit trail.
// GET /api/actions
func (h *VaultHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.actions.History(r.Context(), parseListOpts(r))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "action history is not enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "list actions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	if recs == nil {
		recs = []domain.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": recs})
}

func (h *VaultHandler) respond(w http.ResponseWriter, res service.ActionResult) {
	writeJSON(w, statusFor(res), res)
}

// statusFor maps an action outcome onto an HTTP status code.
func statusFor(res service.ActionResult) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case "action_in_flight", "lock_held":
		return http.StatusConflict
	case "invalid_address", "invalid_amount", "no_vault_bound", "missing_parent_token":
		return http.StatusBadRequest
	case "market_not_found", "not_found":
		return http.StatusNotFound
	case "creation_failed", "event_missing", "transaction_reverted":
		return http.StatusUnprocessableEntity
	case "wallet_unavailable":
		return http.StatusServiceUnavailable
	case "network_error":
		return http.StatusBadGateway
	case "timed_out":
		return http.StatusGatewayTimeout
	case "rate_limited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
