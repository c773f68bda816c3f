package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)

// Latest returns the newest quote for an asset, or domain.ErrNotFound.
func (s *PriceStore) Latest(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error) {
	var price decimal.Decimal
	var quotedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT price, quoted_at FROM asset_prices
		 WHERE asset_id = $1 ORDER BY quoted_at DESC LIMIT 1`, assetID,
	).Scan(&price, &quotedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, time.Time{}, domain.ErrNotFound
		}
		return decimal.Zero, time.Time{}, fmt.Errorf("postgres: latest price %s: %w", assetID, err)
	}
	return price, quotedAt, nil
}
