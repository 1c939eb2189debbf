// Package notify pushes human-readable ledger alerts to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every Sender. When an allow-list of event
// types is configured, Notify drops everything else.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every type.
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

// Notify sends title and message if event passes the allow-list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders ev and sends it through Notify.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	title, message := Format(ev)
	return n.Notify(ctx, string(ev.Type), title, message)
}

// dispatch tries every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d of %d senders failed: %w", len(errs), len(n.senders), errors.Join(errs...))
	}
	return nil
}

// Format renders a ledger event as a title and a one-line body.
func Format(ev domain.Event) (string, string) {
	switch ev.Type {
	case domain.EventMarketCreated:
		return fmt.Sprintf("Market #%d opened", ev.MarketID),
			fmt.Sprintf("%s (closes %s)", ev.Title, time.UnixMilli(ev.EndTime).UTC().Format(time.RFC3339))
	case domain.EventStakePlaced:
		amount, payer := "?", "?"
		if ev.Amount != nil {
			amount = ev.Amount.Dec()
		}
		if ev.Payer != nil {
			payer = ev.Payer.Hex()
		}
		return fmt.Sprintf("Stake on market #%d", ev.MarketID),
			fmt.Sprintf("%s staked %s on %s", payer, amount, strings.ToUpper(ev.Outcome.String()))
	case domain.EventOwnerSet:
		owner := "?"
		if ev.Account != nil {
			owner = ev.Account.Hex()
		}
		return "Ledger owner set", owner
	default:
		return string(ev.Type), ""
	}
}
