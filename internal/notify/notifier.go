// Package notify delivers ledger alerts to chat channels (Telegram, Discord).
// Events can be filtered by name so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only events whose
// name is in the allowed set are forwarded.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose name appears in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// NotifyEvent formats a ledger event and sends it if its name is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[ev.Event] {
		n.logger.DebugContext(ctx, "notifier: event filtered out",
			slog.String("event", ev.Event),
		)
		return nil
	}
	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// Format renders a ledger event as a title and a message body.
func Format(ev domain.LedgerEvent) (title, message string) {
	switch ev.Event {
	case domain.EventOutflowRejected:
		title = "Outflow rejected"
	case domain.EventTransferRecorded:
		title = "Transfer recorded"
	case domain.EventExchangeRecorded:
		title = "Exchange recorded"
	case domain.EventEntryDeleted:
		title = "Entry deleted"
	default:
		title = "Entry recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "position: %s\n", ev.PositionID)
	if ev.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", ev.Reason)
	}
	if ev.Quantity != "" {
		fmt.Fprintf(&b, "quantity: %s\n", ev.Quantity)
	}
	if ev.EntryID != "" {
		fmt.Fprintf(&b, "entry: %s\n", ev.EntryID)
	}
	if ev.LinkedEntryID != "" {
		fmt.Fprintf(&b, "linked entry: %s\n", ev.LinkedEntryID)
	}
	if !ev.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", ev.OccurredAt.Format("2006-01-02 15:04 MST"))
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// dispatch sends the notification to every sender. A single sender failure
// does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
