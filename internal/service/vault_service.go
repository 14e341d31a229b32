package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/amount"
	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/metrics"
	"github.com/alanyoungcy/polyvault/internal/notify"
	"github.com/alanyoungcy/polyvault/internal/vault"
)

// MarketLookup turns a market page URL into its slug and question id.
type MarketLookup interface {
	QuestionID(ctx context.Context, marketURL string) (slug string, questionID common.Hash, err error)
}

// ReceiptArchiver stores mined receipts somewhere durable.
type ReceiptArchiver interface {
	Archive(ctx context.Context, action domain.Action, vault string, receipts []*types.Receipt) error
}

// ActionResult is the outcome of one user action, shaped for both the CLI
// and the JSON API.
type ActionResult struct {
	Action     domain.Action            `json:"action"`
	OK         bool                     `json:"ok"`
	Status     string                   `json:"status"`
	ErrorKind  string                   `json:"error_kind,omitempty"`
	Vault      string                   `json:"vault,omitempty"`
	Parent     *domain.ParentToken      `json:"parent,omitempty"`
	Outcomes   *domain.OutcomeTokenPair `json:"outcomes,omitempty"`
	Created    bool                     `json:"created,omitempty"`
	Amount     string                   `json:"amount,omitempty"`
	TxHashes   []string                 `json:"tx_hashes,omitempty"`
	Resolution *domain.Resolution       `json:"resolution,omitempty"`

	Err error `json:"-"`
}

// SessionSnapshot is the read-only view of the session.
type SessionSnapshot struct {
	Account string         `json:"account,omitempty"`
	Bound   bool           `json:"bound"`
	Binding *vault.Binding `json:"binding,omitempty"`
}

// Option configures optional collaborators of a VaultService.
type Option func(*VaultService)

// WithAudit records every action in store.
func WithAudit(store domain.AuditStore) Option {
	return func(s *VaultService) { s.audit = store }
}

// WithArchiver uploads the receipts of every mined transaction.
func WithArchiver(a ReceiptArchiver) Option {
	return func(s *VaultService) { s.archive = a }
}

// WithNotifier announces vault discoveries and action outcomes.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *VaultService) { s.notifier = n }
}

// WithMetrics counts actions and their latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *VaultService) { s.metrics = m }
}

// VaultService runs the five user actions against one session. At most one
// action runs at a time; a concurrent caller gets domain.ErrActionInFlight.
type VaultService struct {
	session  *vault.Session
	syncer   *vault.Synchronizer
	resolver *vault.Resolver
	exec     *vault.Executor
	markets  MarketLookup
	oracle   common.Address

	audit    domain.AuditStore
	archive  ReceiptArchiver
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sinksMu sync.RWMutex
	sinks   []domain.StatusSink
}

// NewVaultService creates a VaultService. oracle is the resolution oracle
// every partition key is built with.
func NewVaultService(
	session *vault.Session,
	syncer *vault.Synchronizer,
	resolver *vault.Resolver,
	exec *vault.Executor,
	markets MarketLookup,
	oracle common.Address,
	logger *slog.Logger,
	opts ...Option,
) *VaultService {
	s := &VaultService{
		session:  session,
		syncer:   syncer,
		resolver: resolver,
		exec:     exec,
		markets:  markets,
		oracle:   oracle,
		logger:   logger.With(slog.String("component", "vault_service")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddStatusSink registers a display for per-action status text.
func (s *VaultService) AddStatusSink(sink domain.StatusSink) {
	s.sinksMu.Lock()
	s.sinks = append(s.sinks, sink)
	s.sinksMu.Unlock()
}

// AddVaultView registers a display of the current vault address.
func (s *VaultService) AddVaultView(v domain.VaultView) {
	s.syncer.AddView(v)
}

// Snapshot returns the connected account and current binding.
func (s *VaultService) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{}
	if acct := s.session.Account(); acct != (common.Address{}) {
		snap.Account = acct.Hex()
	}
	if b, ok := s.session.Binding(); ok {
		snap.Bound = true
		snap.Binding = &b
	}
	return snap
}

// History lists recorded actions, newest first. It returns
// domain.ErrNotFound when no audit store is configured.
func (s *VaultService) History(ctx context.Context, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("service: history: audit disabled: %w", domain.ErrNotFound)
	}
	recs, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: history: %w", err)
	}
	return recs, nil
}

// Resolve fetches the vault for (parentToken, oracle, question of
// marketURL), creating it when none exists, and binds it.
func (s *VaultService) Resolve(ctx context.Context, marketURL, parentToken string) ActionResult {
	return s.run(ctx, domain.ActionResolve, domain.FieldCreate, func(ctx context.Context) ActionResult {
		marketURL = strings.TrimSpace(marketURL)
		parentToken = strings.TrimSpace(parentToken)
		if marketURL == "" || parentToken == "" {
			return failed(fmt.Errorf("%w: fill both inputs", domain.ErrInvalidAddress))
		}
		if !common.IsHexAddress(parentToken) {
			return failed(fmt.Errorf("%w: parent token %q", domain.ErrInvalidAddress, parentToken))
		}

		signer, err := s.session.Signer(ctx)
		if err != nil {
			return failed(fmt.Errorf("service: resolve: %w", err))
		}
		slug, qid, err := s.markets.QuestionID(ctx, marketURL)
		if err != nil {
			return failed(fmt.Errorf("service: resolve: %w", err))
		}
		key := domain.PartitionKey{
			ParentToken: common.HexToAddress(parentToken),
			Oracle:      s.oracle,
			QuestionID:  qid,
		}
		s.logger.InfoContext(ctx, "resolving vault",
			slog.String("slug", slug),
			slog.String("question_id", qid.Hex()),
			slog.String("parent", key.ParentToken.Hex()),
		)

		fr, err := s.resolver.FetchOrCreate(ctx, signer, key)
		res := ActionResult{}
		if fr.TxHash != (common.Hash{}) {
			res.TxHashes = []string{fr.TxHash.Hex()}
		}
		if fr.Receipt != nil {
			s.archiveReceipts(ctx, domain.ActionResolve, fr.Vault.Hex(), []*types.Receipt{fr.Receipt})
		}
		if err != nil {
			out := failed(fmt.Errorf("service: resolve: %w", err))
			out.TxHashes = res.TxHashes
			return out
		}

		b, _, err := s.syncer.Sync(ctx, fr.Vault.Hex(), parentToken)
		if err != nil {
			out := failed(fmt.Errorf("service: resolve: bind: %w", err))
			out.Vault = fr.Vault.Hex()
			out.TxHashes = res.TxHashes
			return out
		}

		outcomes := fr.Outcomes
		res.OK = true
		res.Vault = fr.Vault.Hex()
		res.Parent = &b.Parent
		res.Outcomes = &outcomes
		res.Created = fr.Created

		var head string
		if fr.Created {
			head = fmt.Sprintf("Vault created (tx %s...)", fr.TxHash.Hex()[:10])
		} else {
			head = "Existing vault fetched"
		}
		res.Status = fmt.Sprintf("%s\nVault: %s\nYES : %s\nNO  : %s",
			head, fr.Vault.Hex(), outcomes.Yes.Hex(), outcomes.No.Hex())
		return res
	})
}

// Bind synchronizes the session to vaultAddr. parentFallback is used when
// the vault predates the parent() getter.
func (s *VaultService) Bind(ctx context.Context, vaultAddr, parentFallback string) ActionResult {
	return s.run(ctx, domain.ActionBind, domain.FieldMove, func(ctx context.Context) ActionResult {
		b, ok, err := s.syncer.Sync(ctx, vaultAddr, parentFallback)
		if err != nil {
			return failed(fmt.Errorf("service: bind: %w", err))
		}
		if !ok {
			return failed(fmt.Errorf("%w: %q", domain.ErrInvalidAddress, strings.TrimSpace(vaultAddr)))
		}
		return ActionResult{
			OK:     true,
			Vault:  b.Vault.Hex(),
			Parent: &b.Parent,
			Status: fmt.Sprintf("Vault: %s\nParent: %s (%d decimals)", b.Vault.Hex(), b.Parent.Address.Hex(), b.Parent.Decimals),
		}
	})
}

// Push splits amount of the parent token into YES+NO via vaultAddr.
// parentFallback is only consulted when vaultAddr is not already bound and
// predates parent(), as in Bind.
func (s *VaultService) Push(ctx context.Context, vaultAddr, rawAmount, parentFallback string) ActionResult {
	return s.submit(ctx, domain.ActionPush, domain.FieldMove, "pushDown()", vaultAddr, rawAmount, parentFallback, s.exec.Push)
}

// Pull merges amount of YES+NO back into the parent token.
func (s *VaultService) Pull(ctx context.Context, vaultAddr, rawAmount, parentFallback string) ActionResult {
	return s.submit(ctx, domain.ActionPull, domain.FieldMove, "pullUp()", vaultAddr, rawAmount, parentFallback, s.exec.Pull)
}

// Settle redeems amount of the winning outcome token.
func (s *VaultService) Settle(ctx context.Context, vaultAddr, rawAmount, parentFallback string) ActionResult {
	return s.submit(ctx, domain.ActionSettle, domain.FieldSettle, "settle()", vaultAddr, rawAmount, parentFallback, s.exec.Settle)
}

// Check reports whether the vault's market has resolved. Resolution does
// not depend on the parent token, so a legacy vault with no parentFallback
// is still checked, without being bound.
func (s *VaultService) Check(ctx context.Context, vaultAddr, parentFallback string) ActionResult {
	return s.run(ctx, domain.ActionCheck, domain.FieldSettle, func(ctx context.Context) ActionResult {
		var (
			r   domain.Resolution
			err error
		)
		switch syncErr := s.resync(ctx, vaultAddr, parentFallback); {
		case errors.Is(syncErr, domain.ErrMissingParentToken):
			r, err = s.exec.ResolutionAt(ctx, common.HexToAddress(strings.TrimSpace(vaultAddr)))
		case syncErr != nil:
			return failed(fmt.Errorf("service: check: %w", syncErr))
		default:
			r, err = s.exec.CheckResolution(ctx)
		}
		if err != nil {
			return failed(fmt.Errorf("service: check: %w", err))
		}
		res := ActionResult{OK: true, Resolution: &r, Status: "Not resolved yet"}
		if r.Resolved {
			res.Status = fmt.Sprintf("Resolved - winning index = %d", r.WinningIndex)
		}
		return res
	})
}

func (s *VaultService) submit(
	ctx context.Context,
	action domain.Action,
	field domain.StatusField,
	label, vaultAddr, rawAmount, parentFallback string,
	do func(context.Context, string) (vault.Submission, error),
) ActionResult {
	return s.run(ctx, action, field, func(ctx context.Context) ActionResult {
		if err := s.resync(ctx, vaultAddr, parentFallback); err != nil {
			return failed(fmt.Errorf("service: %s: %w", action, err))
		}
		sub, err := do(ctx, rawAmount)

		res := ActionResult{}
		for _, h := range sub.Hashes {
			res.TxHashes = append(res.TxHashes, h.Hex())
		}
		b, _ := s.session.Binding()
		if sub.Amount != nil {
			res.Amount = amount.Format(sub.Amount, b.Parent.Decimals)
		}
		s.archiveReceipts(ctx, action, b.Vault.Hex(), sub.Receipts)

		if err != nil {
			out := failed(fmt.Errorf("service: %s: %w", action, err))
			out.TxHashes, out.Amount = res.TxHashes, res.Amount
			return out
		}
		res.OK = true
		res.Vault = b.Vault.Hex()
		res.Status = fmt.Sprintf("%s confirmed: %s", label, res.Amount)
		return res
	})
}

// resync binds the displayed vault before acting on it. A malformed
// address leaves the prior binding in place.
func (s *VaultService) resync(ctx context.Context, vaultAddr, parentFallback string) error {
	_, _, err := s.syncer.Sync(ctx, vaultAddr, parentFallback)
	return err
}

func (s *VaultService) run(ctx context.Context, action domain.Action, field domain.StatusField, fn func(context.Context) ActionResult) ActionResult {
	end, err := s.session.BeginAction()
	if err != nil {
		res := failed(err)
		res.Action = action
		s.setStatus(ctx, field, res.Status)
		return res
	}
	defer end()

	start := time.Now()
	res := fn(ctx)
	res.Action = action
	elapsed := time.Since(start)

	outcome := "ok"
	if !res.OK {
		outcome = res.ErrorKind
		s.logger.WarnContext(ctx, "action failed",
			slog.String("action", string(action)),
			slog.String("error_kind", res.ErrorKind),
			slog.String("error", res.Err.Error()),
		)
	} else {
		s.logger.InfoContext(ctx, "action succeeded",
			slog.String("action", string(action)),
			slog.String("vault", res.Vault),
			slog.Duration("elapsed", elapsed),
		)
	}
	s.metrics.ObserveAction(string(action), outcome, elapsed)
	s.setStatus(ctx, field, res.Status)

	// Recording and notification run under a context detached from the caller.
	bg := context.WithoutCancel(ctx)
	s.record(bg, res)
	s.announce(bg, res)
	return res
}

func (s *VaultService) setStatus(ctx context.Context, field domain.StatusField, text string) {
	s.sinksMu.RLock()
	sinks := append([]domain.StatusSink(nil), s.sinks...)
	s.sinksMu.RUnlock()
	for _, sink := range sinks {
		sink.SetStatus(ctx, field, text)
	}
}

func (s *VaultService) record(ctx context.Context, res ActionResult) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{}
	if res.Created {
		detail["created"] = true
	}
	if res.Resolution != nil {
		detail["resolved"] = res.Resolution.Resolved
		detail["winning_index"] = res.Resolution.WinningIndex
	}
	if res.Err != nil {
		detail["error"] = res.Err.Error()
	}
	rec := domain.ActionRecord{
		Action:    res.Action,
		Vault:     res.Vault,
		Amount:    res.Amount,
		TxHashes:  res.TxHashes,
		OK:        res.OK,
		ErrorKind: res.ErrorKind,
		Detail:    detail,
	}
	if err := s.audit.Log(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("action", string(res.Action)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *VaultService) announce(ctx context.Context, res ActionResult) {
	if !s.notifier.Enabled() {
		return
	}
	ev := notify.Event{Title: "polyvault " + string(res.Action), Message: res.Status}
	switch {
	case !res.OK:
		ev.Kind = notify.EventActionFailed
	case res.Action == domain.ActionResolve && res.Created:
		ev.Kind, ev.Title = notify.EventVaultCreated, "Vault created"
	case res.Action == domain.ActionResolve:
		ev.Kind, ev.Title = notify.EventVaultFound, "Vault found"
	default:
		ev.Kind = notify.EventActionSucceeded
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

func (s *VaultService) archiveReceipts(ctx context.Context, action domain.Action, vaultHex string, receipts []*types.Receipt) {
	if s.archive == nil || len(receipts) == 0 {
		return
	}
	if err := s.archive.Archive(context.WithoutCancel(ctx), action, vaultHex, receipts); err != nil {
		s.logger.WarnContext(ctx, "receipt archive failed",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

func failed(err error) ActionResult {
	status := "Error: " + err.Error()
	if errors.Is(err, domain.ErrNoVaultBound) {
		status = "Enter or create a vault first"
	}
	return ActionResult{
		Status:    status,
		ErrorKind: domain.ErrorKind(err),
		Err:       err,
	}
}
