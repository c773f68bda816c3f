package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates a new AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// Compile-time interface check.
var _ domain.AssetStore = (*AssetStore)(nil)

// GetByID retrieves an asset by its ID.
func (s *AssetStore) GetByID(ctx context.Context, id string) (domain.Asset, error) {
	var a domain.Asset
	var kind string
	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, name, kind, created_at FROM assets WHERE id = $1`, id,
	).Scan(&a.ID, &a.Symbol, &a.Name, &kind, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Asset{}, domain.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("postgres: get asset %s: %w", id, err)
	}
	a.Kind = domain.AssetKind(kind)
	return a, nil
}

// Upsert inserts an asset or updates its descriptive fields.
func (s *AssetStore) Upsert(ctx context.Context, a domain.Asset) error {
	const query = `
		INSERT INTO assets (id, symbol, name, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			symbol     = EXCLUDED.symbol,
			name       = EXCLUDED.name,
			kind       = EXCLUDED.kind,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, a.ID, a.Symbol, a.Name, string(a.Kind)); err != nil {
		return fmt.Errorf("postgres: upsert asset %s: %w", a.ID, err)
	}
	return nil
}
