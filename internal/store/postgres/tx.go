package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// inTx runs fn inside a transaction, committing when it returns nil.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// lockPositions takes row locks on the given positions in ascending ID order
// so that concurrent pair writes cannot deadlock.
func lockPositions(ctx context.Context, tx pgx.Tx, ids ...string) error {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	var prev string
	for i, id := range ordered {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM positions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: lock position %s: %w", id, err)
		}
	}
	return nil
}

func bumpGeneration(ctx context.Context, tx pgx.Tx, positionID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE positions SET generation = generation + 1, updated_at = NOW() WHERE id = $1`,
		positionID)
	if err != nil {
		return fmt.Errorf("postgres: bump generation %s: %w", positionID, err)
	}
	return nil
}
