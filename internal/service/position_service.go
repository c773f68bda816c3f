package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

var one = decimal.NewFromInt(1)

// PositionView is a position together with its current valuation.
type PositionView struct {
	Position domain.Position
	Metrics  domain.PositionMetrics
}

// PositionService opens positions and values them from their ledgers.
type PositionService struct {
	positions   domain.PositionStore
	assets      domain.AssetStore
	entries     domain.EntryStore
	prices      domain.PriceReader
	concurrency int
	logger      *slog.Logger
}

// NewPositionService creates a PositionService. concurrency bounds how many
// ledgers are valued at once by List, Summary and Rebuild.
func NewPositionService(
	positions domain.PositionStore,
	assets domain.AssetStore,
	entries domain.EntryStore,
	prices domain.PriceReader,
	concurrency int,
	logger *slog.Logger,
) *PositionService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PositionService{
		positions:   positions,
		assets:      assets,
		entries:     entries,
		prices:      prices,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "position_service")),
	}
}

// Open returns the position identified by key, creating it when needed. The
// asset must exist.
func (s *PositionService) Open(ctx context.Context, key domain.PositionKey) (domain.Position, error) {
	key.OwnerID = strings.TrimSpace(key.OwnerID)
	key.VenueID = strings.TrimSpace(key.VenueID)
	if key.OwnerID == "" || key.AssetID == "" || key.VenueID == "" {
		return domain.Position{}, fmt.Errorf("position_service: owner, asset and venue are required: %w", domain.ErrInvalidEntry)
	}
	if key.GoalID != nil && strings.TrimSpace(*key.GoalID) == "" {
		key.GoalID = nil
	}
	if _, err := s.assets.GetByID(ctx, key.AssetID); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get asset %q: %w", key.AssetID, err)
	}

	pos, err := s.positions.GetOrCreate(ctx, key)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: open position: %w", err)
	}
	return pos, nil
}

// Get returns a position by ID.
func (s *PositionService) Get(ctx context.Context, positionID string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %q: %w", positionID, err)
	}
	return pos, nil
}

// Metrics values a position's ledger at the asset's latest price. A position
// without live entries values to zero.
func (s *PositionService) Metrics(ctx context.Context, positionID string) (domain.PositionMetrics, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.PositionMetrics{}, fmt.Errorf("position_service: get position %q: %w", positionID, err)
	}
	m, _, err := s.value(ctx, pos)
	return m, err
}

// List returns every position of an owner with its metrics.
func (s *PositionService) List(ctx context.Context, ownerID string) ([]PositionView, error) {
	positions, err := s.positions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list positions for %q: %w", ownerID, err)
	}

	views := make([]PositionView, len(positions))
	err = s.each(ctx, positions, func(ctx context.Context, i int, pos domain.Position) error {
		m, _, err := s.value(ctx, pos)
		if err != nil {
			return err
		}
		views[i] = PositionView{Position: pos, Metrics: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// Summary aggregates the metrics of an owner's positions, limited to one
// venue when venueID is not empty. Positions without live entries are left
// out of the count.
func (s *PositionService) Summary(ctx context.Context, ownerID, venueID string) (domain.Summary, error) {
	var (
		positions []domain.Position
		err       error
	)
	if venueID != "" {
		positions, err = s.positions.ListByVenue(ctx, ownerID, venueID)
	} else {
		positions, err = s.positions.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		return domain.Summary{}, fmt.Errorf("position_service: list positions for %q: %w", ownerID, err)
	}

	metrics := make([]domain.PositionMetrics, len(positions))
	held := make([]bool, len(positions))
	err = s.each(ctx, positions, func(ctx context.Context, i int, pos domain.Position) error {
		m, live, err := s.value(ctx, pos)
		if err != nil {
			return err
		}
		metrics[i], held[i] = m, live
		return nil
	})
	if err != nil {
		return domain.Summary{}, err
	}

	kept := metrics[:0]
	for i, m := range metrics {
		if held[i] {
			kept = append(kept, m)
		}
	}
	return valuation.Summarize(kept), nil
}

// Rebuild recomputes the cached balance of every position from its full
// ledger and returns how many positions were refreshed.
func (s *PositionService) Rebuild(ctx context.Context, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	total := 0
	for offset := 0; ; offset += pageSize {
		page, err := s.positions.ListAll(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("position_service: list positions: %w", err)
		}
		err = s.each(ctx, page, func(ctx context.Context, _ int, pos domain.Position) error {
			if _, err := refreshPosition(ctx, s.entries, s.positions, pos.ID); err != nil {
				return fmt.Errorf("position_service: rebuild %q: %w", pos.ID, err)
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += len(page)
		if len(page) < pageSize {
			break
		}
	}

	s.logger.InfoContext(ctx, "position_service: rebuild complete",
		slog.Int("positions", total),
	)
	return total, nil
}

// value computes the metrics of one position and reports whether its ledger
// has any live entries.
func (s *PositionService) value(ctx context.Context, pos domain.Position) (domain.PositionMetrics, bool, error) {
	ledger, err := s.entries.List(ctx, pos.ID)
	if err != nil {
		return domain.PositionMetrics{}, false, fmt.Errorf("position_service: ledger %q: %w", pos.ID, err)
	}
	state, err := valuation.Accumulate(ledger)
	if errors.Is(err, domain.ErrEmptyLedger) {
		return valuation.MetricsFromState(valuation.State{}, nil), false, nil
	}
	if err != nil {
		return domain.PositionMetrics{}, false, fmt.Errorf("position_service: value %q: %w", pos.ID, err)
	}

	price, err := s.price(ctx, pos.AssetID)
	if err != nil {
		return domain.PositionMetrics{}, false, err
	}
	return valuation.MetricsFromState(state, price), true, nil
}

func (s *PositionService) price(ctx context.Context, assetID string) (*decimal.Decimal, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("position_service: get asset %q: %w", assetID, err)
	}
	if asset.IsCurrency() {
		p := one
		return &p, nil
	}
	if s.prices == nil {
		return nil, nil
	}
	price, err := s.prices.LatestPrice(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("position_service: price %q: %w", assetID, err)
	}
	return price, nil
}

// each runs fn for every position with bounded concurrency.
func (s *PositionService) each(ctx context.Context, positions []domain.Position, fn func(ctx context.Context, i int, pos domain.Position) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, pos := range positions {
		g.Go(func() error {
			return fn(gctx, i, pos)
		})
	}
	return g.Wait()
}
