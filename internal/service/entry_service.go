package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/ledger"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

// EntryService records and removes single ledger entries. Outflows are
// guarded against the position's available balance atomically with the write.
type EntryService struct {
	positions domain.PositionStore
	assets    domain.AssetStore
	entries   domain.EntryStore
	locks     domain.LockManager
	lockOpts  LockOptions
	events    ledgerEvents
	logger    *slog.Logger
}

// NewEntryService creates an EntryService with all required dependencies.
// bus, audit and notifier may be nil.
func NewEntryService(
	positions domain.PositionStore,
	assets domain.AssetStore,
	entries domain.EntryStore,
	locks domain.LockManager,
	lockOpts LockOptions,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier EventNotifier,
	logger *slog.Logger,
) *EntryService {
	logger = logger.With(slog.String("component", "entry_service"))
	return &EntryService{
		positions: positions,
		assets:    assets,
		entries:   entries,
		locks:     locks,
		lockOpts:  lockOpts,
		events:    ledgerEvents{bus: bus, audit: audit, notifier: notifier, logger: logger},
		logger:    logger,
	}
}

// Record validates p, appends it to the ledger of positionID and refreshes
// the position's cached balance. p.PositionID and p.Currency are set from the
// position.
func (s *EntryService) Record(ctx context.Context, positionID string, p ledger.EntryParams) (domain.LedgerEntry, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("entry_service: get position %q: %w", positionID, err)
	}
	asset, err := s.assets.GetByID(ctx, pos.AssetID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("entry_service: get asset %q: %w", pos.AssetID, err)
	}

	p.PositionID = pos.ID
	p.Currency = asset.IsCurrency()
	p.LinkedEntryID = nil
	entry, err := ledger.NewEntry(p)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("entry_service: %w", err)
	}

	var check domain.LedgerCheck
	if entry.Direction == domain.FlowOutflow {
		unlock, err := lockPositions(ctx, s.locks, s.lockOpts, pos.ID)
		if err != nil {
			return domain.LedgerEntry{}, fmt.Errorf("entry_service: lock position %q: %w", pos.ID, err)
		}
		defer unlock()
		check = valuation.OutflowCheck(entry.Quantity)
	}

	created, err := s.entries.Create(ctx, entry, check)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.rejected(ctx, entry, err)
		}
		return domain.LedgerEntry{}, fmt.Errorf("entry_service: record %s on %q: %w", entry.Reason, pos.ID, err)
	}

	s.refresh(ctx, pos.ID)

	s.events.emit(ctx, eventFor(domain.EventEntryRecorded, created), map[string]any{
		"reason":      string(created.Reason),
		"quantity":    created.Quantity.String(),
		"unit_price":  created.UnitPrice.String(),
		"occurred_at": created.OccurredAt,
	})

	s.logger.InfoContext(ctx, "entry_service: entry recorded",
		slog.String("entry_id", created.ID),
		slog.String("position_id", created.PositionID),
		slog.String("reason", string(created.Reason)),
		slog.String("quantity", created.Quantity.String()),
	)
	return created, nil
}

func (s *EntryService) rejected(ctx context.Context, entry domain.LedgerEntry, cause error) {
	detail := map[string]any{
		"reason":    string(entry.Reason),
		"requested": entry.Quantity.String(),
	}
	var insufficient *domain.InsufficientBalanceError
	if errors.As(cause, &insufficient) {
		detail["available"] = insufficient.Available.String()
	}
	ev := eventFor(domain.EventOutflowRejected, entry)
	ev.EntryID = ""
	s.events.emit(ctx, ev, detail)

	s.logger.WarnContext(ctx, "entry_service: outflow rejected",
		slog.String("position_id", entry.PositionID),
		slog.String("reason", string(entry.Reason)),
		slog.String("error", cause.Error()),
	)
}

// Delete soft-deletes an entry together with its linked partner, if any, and
// returns every entry removed. A delete that would leave an outflow without
// the quantity behind it fails with *domain.InsufficientBalanceError.
func (s *EntryService) Delete(ctx context.Context, entryID string) ([]domain.LedgerEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("entry_service: get entry %q: %w", entryID, err)
	}

	lockIDs := []string{entry.PositionID}
	if entry.LinkedEntryID != nil {
		if partner, err := s.entries.GetByID(ctx, *entry.LinkedEntryID); err == nil {
			lockIDs = append(lockIDs, partner.PositionID)
		}
	}
	unlock, err := lockPositions(ctx, s.locks, s.lockOpts, lockIDs...)
	if err != nil {
		return nil, fmt.Errorf("entry_service: lock positions: %w", err)
	}
	defer unlock()

	deleted, err := s.entries.SoftDelete(ctx, entryID, valuation.BalanceCheck())
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.logger.WarnContext(ctx, "entry_service: delete would overdraw position",
				slog.String("entry_id", entryID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("entry_service: delete entry %q: %w", entryID, err)
	}

	refreshed := map[string]bool{}
	for _, e := range deleted {
		if !refreshed[e.PositionID] {
			refreshed[e.PositionID] = true
			s.refresh(ctx, e.PositionID)
		}
		s.events.emit(ctx, eventFor(domain.EventEntryDeleted, e), map[string]any{
			"reason": string(e.Reason),
		})
	}

	s.logger.InfoContext(ctx, "entry_service: entry deleted",
		slog.String("entry_id", entryID),
		slog.Int("removed", len(deleted)),
	)
	return deleted, nil
}

// List returns one page of a position's ledger, newest first.
func (s *EntryService) List(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	if _, err := s.positions.GetByID(ctx, positionID); err != nil {
		return nil, fmt.Errorf("entry_service: get position %q: %w", positionID, err)
	}
	entries, err := s.entries.ListPage(ctx, positionID, opts)
	if err != nil {
		return nil, fmt.Errorf("entry_service: list entries for %q: %w", positionID, err)
	}
	return entries, nil
}

// refresh updates cached balances after a committed write. A failure leaves
// the cache stale until the next write or rebuild, so it is only logged.
func (s *EntryService) refresh(ctx context.Context, positionID string) {
	if _, err := refreshPosition(ctx, s.entries, s.positions, positionID); err != nil {
		s.logger.WarnContext(ctx, "entry_service: refresh position failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}
}
