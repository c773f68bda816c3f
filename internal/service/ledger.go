package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

// EventNotifier forwards ledger events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error
}

// LockOptions controls the per-position write lock.
type LockOptions struct {
	// TTL bounds how long a crashed writer can hold a position.
	TTL time.Duration
	// Wait is how long a writer retries a held lock before giving up with
	// domain.ErrLockHeld.
	Wait time.Duration
}

const (
	lockRetryMin = 20 * time.Millisecond
	lockRetryMax = 250 * time.Millisecond
)

func positionLockKey(positionID string) string {
	return "position:" + positionID
}

// lockPositions takes the write lock of every position in ascending ID order
// and returns a function releasing all of them.
func lockPositions(ctx context.Context, locks domain.LockManager, opts LockOptions, positionIDs ...string) (func(), error) {
	if locks == nil {
		return func() {}, nil
	}

	ids := append([]string(nil), positionIDs...)
	sort.Strings(ids)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		unlock, err := acquireWithRetry(ctx, locks, positionLockKey(id), opts)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func acquireWithRetry(ctx context.Context, locks domain.LockManager, key string, opts LockOptions) (func(), error) {
	deadline := time.Now().Add(opts.Wait)
	backoff := lockRetryMin
	for {
		unlock, err := locks.Acquire(ctx, key, opts.TTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		if time.Now().Add(backoff).After(deadline) {
			return nil, fmt.Errorf("service: %s: %w", key, domain.ErrLockHeld)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("service: waiting for %s: %w", key, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, lockRetryMax)
	}
}

// refreshPosition recomputes the cached balance columns of a position from
// its full ledger. An empty ledger resets them to zero.
func refreshPosition(ctx context.Context, entries domain.EntryStore, positions domain.PositionStore, positionID string) (domain.PositionSnapshot, error) {
	ledger, err := entries.List(ctx, positionID)
	if err != nil {
		return domain.PositionSnapshot{}, err
	}
	state, err := valuation.Accumulate(ledger)
	if err != nil && !errors.Is(err, domain.ErrEmptyLedger) {
		return domain.PositionSnapshot{}, err
	}
	snap := state.Snapshot()
	if err := positions.UpdateSnapshot(ctx, positionID, snap); err != nil {
		return domain.PositionSnapshot{}, err
	}
	return snap, nil
}

// ledgerEvents fans a change out to the bus, the audit log and the notifier.
// Failures are logged: the ledger write has already committed.
type ledgerEvents struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	logger   *slog.Logger
}

func (le ledgerEvents) emit(ctx context.Context, ev domain.LedgerEvent, detail map[string]any) {
	if le.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = le.bus.Publish(ctx, domain.LedgerChannel, payload)
		}
		if err != nil {
			le.logger.WarnContext(ctx, "ledger: publish event failed",
				slog.String("event", ev.Event),
				slog.String("position_id", ev.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if le.audit != nil {
		if detail == nil {
			detail = map[string]any{}
		}
		detail["position_id"] = ev.PositionID
		if ev.EntryID != "" {
			detail["entry_id"] = ev.EntryID
		}
		if err := le.audit.Log(ctx, ev.Event, detail); err != nil {
			le.logger.WarnContext(ctx, "ledger: audit log failed",
				slog.String("event", ev.Event),
				slog.String("error", err.Error()),
			)
		}
	}

	if le.notifier != nil {
		if err := le.notifier.NotifyEvent(ctx, ev); err != nil {
			le.logger.WarnContext(ctx, "ledger: notify failed",
				slog.String("event", ev.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}

func eventFor(name string, e domain.LedgerEntry) domain.LedgerEvent {
	ev := domain.LedgerEvent{
		Event:      name,
		PositionID: e.PositionID,
		EntryID:    e.ID,
		Reason:     e.Reason,
		Quantity:   e.Quantity.String(),
		OccurredAt: e.OccurredAt,
	}
	if e.LinkedEntryID != nil {
		ev.LinkedEntryID = *e.LinkedEntryID
	}
	return ev
}
