// Package notify fans vault events out to chat channels (Telegram, Discord),
// filtered by event kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event kinds.
const (
	EventVaultCreated    = "vault_created"
	EventVaultFound      = "vault_found"
	EventActionSucceeded = "action_succeeded"
	EventActionFailed    = "action_failed"
)

// Event is one notification.
type Event struct {
	Kind    string
	Title   string
	Message string
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers events to every sender. When an allow-list is
// configured, events of other kinds are dropped.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers ev. A failing sender does not stop delivery to the rest;
// all failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[ev.Kind] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Kind))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, ev.Title, ev.Message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", ev.Kind),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", ev.Kind),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
