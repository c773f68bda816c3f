package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/ledger"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

// TransferService records linked entry pairs: transfers of one asset between
// venues and exchanges of one asset for another.
type TransferService struct {
	positions     domain.PositionStore
	assets        domain.AssetStore
	entries       domain.EntryStore
	locks         domain.LockManager
	lockOpts      LockOptions
	rateTolerance decimal.Decimal
	events        ledgerEvents
	logger        *slog.Logger
}

// NewTransferService creates a TransferService. Exchanges whose quantities
// drift from the quoted rate by more than rateTolerance (a fraction) are
// rejected; a zero tolerance disables the check.
func NewTransferService(
	positions domain.PositionStore,
	assets domain.AssetStore,
	entries domain.EntryStore,
	locks domain.LockManager,
	lockOpts LockOptions,
	rateTolerance decimal.Decimal,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier EventNotifier,
	logger *slog.Logger,
) *TransferService {
	logger = logger.With(slog.String("component", "transfer_service"))
	return &TransferService{
		positions:     positions,
		assets:        assets,
		entries:       entries,
		locks:         locks,
		lockOpts:      lockOpts,
		rateTolerance: rateTolerance,
		events:        ledgerEvents{bus: bus, audit: audit, notifier: notifier, logger: logger},
		logger:        logger,
	}
}

// Transfer moves req.Quantity from the source to the target position. Both
// positions must hold the same asset.
func (s *TransferService) Transfer(ctx context.Context, req ledger.TransferRequest) (ledger.Pair, error) {
	source, target, err := s.ends(ctx, req.SourcePositionID, req.TargetPositionID)
	if err != nil {
		return ledger.Pair{}, err
	}
	if source.AssetID != target.AssetID {
		return ledger.Pair{}, fmt.Errorf("transfer_service: %s holds %s but %s holds %s: %w",
			source.ID, source.AssetID, target.ID, target.AssetID, domain.ErrInvalidEntry)
	}
	asset, err := s.assets.GetByID(ctx, source.AssetID)
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: get asset %q: %w", source.AssetID, err)
	}
	req.Currency = asset.IsCurrency()

	pair, err := s.record(ctx, domain.EventTransferRecorded, req.Quantity, source.ID, target.ID,
		func(sourceLedger []domain.LedgerEntry) (ledger.Pair, error) {
			return ledger.BuildTransfer(req, sourceLedger)
		})
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: transfer %s -> %s: %w", source.ID, target.ID, err)
	}
	return pair, nil
}

// Exchange converts req.SourceQuantity of the source asset into
// req.TargetQuantity of the target asset. Legs on currency positions are
// booked at par; see ledger.BuildExchange.
func (s *TransferService) Exchange(ctx context.Context, req ledger.ExchangeRequest) (ledger.Pair, error) {
	if s.rateTolerance.IsPositive() {
		if err := ledger.CheckRate(req, s.rateTolerance); err != nil {
			return ledger.Pair{}, fmt.Errorf("transfer_service: %w", err)
		}
	}
	source, target, err := s.ends(ctx, req.SourcePositionID, req.TargetPositionID)
	if err != nil {
		return ledger.Pair{}, err
	}
	sourceAsset, err := s.assets.GetByID(ctx, source.AssetID)
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: get asset %q: %w", source.AssetID, err)
	}
	targetAsset, err := s.assets.GetByID(ctx, target.AssetID)
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: get asset %q: %w", target.AssetID, err)
	}
	req.SourceCurrency = sourceAsset.IsCurrency()
	req.TargetCurrency = targetAsset.IsCurrency()

	pair, err := s.record(ctx, domain.EventExchangeRecorded, req.SourceQuantity, source.ID, target.ID,
		func(sourceLedger []domain.LedgerEntry) (ledger.Pair, error) {
			return ledger.BuildExchange(req, sourceLedger)
		})
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: exchange %s -> %s: %w", source.ID, target.ID, err)
	}
	return pair, nil
}

func (s *TransferService) ends(ctx context.Context, sourceID, targetID string) (domain.Position, domain.Position, error) {
	if sourceID == targetID {
		return domain.Position{}, domain.Position{},
			fmt.Errorf("transfer_service: source and target are both %q: %w", sourceID, domain.ErrInvalidEntry)
	}
	source, err := s.positions.GetByID(ctx, sourceID)
	if err != nil {
		return domain.Position{}, domain.Position{}, fmt.Errorf("transfer_service: get source %q: %w", sourceID, err)
	}
	target, err := s.positions.GetByID(ctx, targetID)
	if err != nil {
		return domain.Position{}, domain.Position{}, fmt.Errorf("transfer_service: get target %q: %w", targetID, err)
	}
	return source, target, nil
}

// record builds a pair from the source ledger while both positions are
// locked, then writes it with the outflow guard re-run inside the store
// transaction.
func (s *TransferService) record(
	ctx context.Context,
	event string,
	outflow decimal.Decimal,
	sourceID, targetID string,
	build func(sourceLedger []domain.LedgerEntry) (ledger.Pair, error),
) (ledger.Pair, error) {
	unlock, err := lockPositions(ctx, s.locks, s.lockOpts, sourceID, targetID)
	if err != nil {
		return ledger.Pair{}, err
	}
	defer unlock()

	sourceLedger, err := s.entries.List(ctx, sourceID)
	if err != nil {
		return ledger.Pair{}, fmt.Errorf("transfer_service: source ledger %q: %w", sourceID, err)
	}
	pair, err := build(sourceLedger)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.rejected(ctx, sourceID, outflow, err)
		}
		return ledger.Pair{}, err
	}

	out, in, err := s.entries.CreatePair(ctx, pair.Source, pair.Target, valuation.OutflowCheck(outflow))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.rejected(ctx, sourceID, outflow, err)
		}
		return ledger.Pair{}, err
	}
	pair = ledger.Pair{Source: out, Target: in}

	for _, id := range []string{sourceID, targetID} {
		if _, err := refreshPosition(ctx, s.entries, s.positions, id); err != nil {
			s.logger.WarnContext(ctx, "transfer_service: refresh position failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.events.emit(ctx, eventFor(event, pair.Source), map[string]any{
		"target_position_id": pair.Target.PositionID,
		"linked_entry_id":    pair.Target.ID,
		"source_quantity":    pair.Source.Quantity.String(),
		"target_quantity":    pair.Target.Quantity.String(),
	})

	s.logger.InfoContext(ctx, "transfer_service: pair recorded",
		slog.String("event", event),
		slog.String("source_entry_id", pair.Source.ID),
		slog.String("target_entry_id", pair.Target.ID),
		slog.String("quantity", pair.Source.Quantity.String()),
	)
	return pair, nil
}

func (s *TransferService) rejected(ctx context.Context, positionID string, amount decimal.Decimal, cause error) {
	detail := map[string]any{"requested": amount.String()}
	var insufficient *domain.InsufficientBalanceError
	if errors.As(cause, &insufficient) {
		detail["available"] = insufficient.Available.String()
	}
	s.events.emit(ctx, domain.LedgerEvent{
		Event:      domain.EventOutflowRejected,
		PositionID: positionID,
		Quantity:   amount.String(),
	}, detail)

	s.logger.WarnContext(ctx, "transfer_service: outflow rejected",
		slog.String("position_id", positionID),
		slog.String("error", cause.Error()),
	)
}
