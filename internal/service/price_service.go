package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// PriceService resolves the latest known price of an asset from the Redis
// cache, falling back to the stored quotes.
type PriceService struct {
	cache  domain.PriceCache
	store  domain.PriceStore
	logger *slog.Logger
}

// NewPriceService creates a PriceService. cache may be nil.
func NewPriceService(cache domain.PriceCache, store domain.PriceStore, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		store:  store,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Compile-time interface check.
var _ domain.PriceReader = (*PriceService)(nil)

// LatestPrice returns the newest price of assetID, or nil when none is known.
func (s *PriceService) LatestPrice(ctx context.Context, assetID string) (*decimal.Decimal, error) {
	if s.cache != nil {
		price, _, err := s.cache.GetPrice(ctx, assetID)
		switch {
		case err == nil:
			return &price, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "price_service: cache read failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}

	price, quotedAt, err := s.store.Latest(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("price_service: latest price %q: %w", assetID, err)
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, assetID, price, quotedAt); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache write failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
	return &price, nil
}
