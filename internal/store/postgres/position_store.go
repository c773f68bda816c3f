package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, owner_id, asset_id, venue_id, goal_id,
	quantity, average_cost, total_invested, generation, created_at, updated_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.AssetID, &p.VenueID, &p.GoalID,
		&p.Quantity, &p.AverageCost, &p.TotalInvested,
		&p.Generation, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOrCreate returns the position identified by key, creating an empty one
// when none exists.
func (s *PositionStore) GetOrCreate(ctx context.Context, key domain.PositionKey) (domain.Position, error) {
	const insert = `
		INSERT INTO positions (id, owner_id, asset_id, venue_id, goal_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, asset_id, venue_id, (COALESCE(goal_id, ''))) DO NOTHING`

	if _, err := s.pool.Exec(ctx, insert,
		uuid.NewString(), key.OwnerID, key.AssetID, key.VenueID, key.GoalID,
	); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: create position %s/%s/%s: %w",
			key.OwnerID, key.AssetID, key.VenueID, err)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE owner_id = $1 AND asset_id = $2 AND venue_id = $3
		   AND COALESCE(goal_id, '') = COALESCE($4, '')`,
		key.OwnerID, key.AssetID, key.VenueID, key.GoalID)
	p, err := scanPositionRow(row)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: load position %s/%s/%s: %w",
			key.OwnerID, key.AssetID, key.VenueID, err)
	}
	return p, nil
}

// ListByOwner returns every position of an owner.
func (s *PositionStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE owner_id = $1 ORDER BY venue_id, asset_id, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", ownerID, err)
	}
	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", ownerID, err)
	}
	return positions, nil
}

// ListByVenue returns the positions an owner holds on one venue.
func (s *PositionStore) ListByVenue(ctx context.Context, ownerID, venueID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE owner_id = $1 AND venue_id = $2 ORDER BY asset_id, id`, ownerID, venueID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s on %s: %w", ownerID, venueID, err)
	}
	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s on %s: %w", ownerID, venueID, err)
	}
	return positions, nil
}

// ListAll pages through every position in ID order.
func (s *PositionStore) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// UpdateSnapshot overwrites the cached balance columns of a position.
func (s *PositionStore) UpdateSnapshot(ctx context.Context, id string, snap domain.PositionSnapshot) error {
	const query = `
		UPDATE positions SET
			quantity       = $2,
			average_cost   = $3,
			total_invested = $4,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, snap.Quantity, snap.AverageCost, snap.TotalInvested)
	if err != nil {
		return fmt.Errorf("postgres: update position snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
