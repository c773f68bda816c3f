package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// EntryStore implements domain.EntryStore using PostgreSQL.
type EntryStore struct {
	pool *pgxpool.Pool
}

// NewEntryStore creates a new EntryStore backed by the given connection pool.
func NewEntryStore(pool *pgxpool.Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ domain.EntryStore = (*EntryStore)(nil)

const entrySelectCols = `id, position_id, direction, reason, quantity, unit_price,
	total_value, fee, fee_type, linked_entry_id, notes, occurred_at, created_at, deleted_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var (
		e                 domain.LedgerEntry
		direction, reason string
		fee               *decimal.Decimal
		feeType           *string
	)
	err := row.Scan(
		&e.ID, &e.PositionID, &direction, &reason,
		&e.Quantity, &e.UnitPrice, &e.TotalValue,
		&fee, &feeType, &e.LinkedEntryID, &e.Notes,
		&e.OccurredAt, &e.CreatedAt, &e.DeletedAt,
	)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Direction = domain.FlowDirection(direction)
	e.Reason = domain.Reason(reason)
	e.Fee = fee
	if feeType != nil {
		ft := domain.FeeType(*feeType)
		e.FeeType = &ft
	}
	return e, nil
}

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func listLedger(ctx context.Context, q querier, positionID string) ([]domain.LedgerEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT `+entrySelectCols+` FROM ledger_entries
		 WHERE position_id = $1 AND deleted_at IS NULL
		 ORDER BY occurred_at, id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger %s: %w", positionID, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ledger %s: %w", positionID, err)
	}
	return entries, nil
}

// List returns the live ledger of a position ordered by (occurred_at, id).
func (s *EntryStore) List(ctx context.Context, positionID string) ([]domain.LedgerEntry, error) {
	return listLedger(ctx, s.pool, positionID)
}

// ListPage returns one page of the live ledger, newest first.
func (s *EntryStore) ListPage(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entrySelectCols + ` FROM ledger_entries
		WHERE position_id = $1 AND deleted_at IS NULL`
	args := []any{positionID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC, id DESC"

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
		return nil, fmt.Errorf("postgres: list entries page %s: %w", positionID, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan entries page %s: %w", positionID, err)
	}
	return entries, nil
}

// GetByID returns a live entry.
func (s *EntryStore) GetByID(ctx context.Context, id string) (domain.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entrySelectCols+` FROM ledger_entries WHERE id = $1 AND deleted_at IS NULL`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerEntry{}, domain.ErrNotFound
		}
		return domain.LedgerEntry{}, fmt.Errorf("postgres: get entry %s: %w", id, err)
	}
	return e, nil
}

// Create locks the entry's position, runs check against its ledger and
// inserts the entry, all in one transaction.
func (s *EntryStore) Create(ctx context.Context, entry domain.LedgerEntry, check domain.LedgerCheck) (domain.LedgerEntry, error) {
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockPositions(ctx, tx, entry.PositionID); err != nil {
			return err
		}
		if err := runCheck(ctx, tx, entry.PositionID, check); err != nil {
			return err
		}
		created, err := insertEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry.CreatedAt = created.CreatedAt
		return bumpGeneration(ctx, tx, entry.PositionID)
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// CreatePair inserts two linked entries in one transaction. Both positions
// are locked; check runs against the ledger of first's position.
func (s *EntryStore) CreatePair(ctx context.Context, first, second domain.LedgerEntry, check domain.LedgerCheck) (domain.LedgerEntry, domain.LedgerEntry, error) {
	if first.LinkedEntryID == nil || *first.LinkedEntryID != second.ID ||
		second.LinkedEntryID == nil || *second.LinkedEntryID != first.ID {
		return domain.LedgerEntry{}, domain.LedgerEntry{},
			fmt.Errorf("postgres: entries %s and %s are not linked: %w", first.ID, second.ID, domain.ErrInvalidEntry)
	}

	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockPositions(ctx, tx, first.PositionID, second.PositionID); err != nil {
			return err
		}
		if err := runCheck(ctx, tx, first.PositionID, check); err != nil {
			return err
		}
		for _, e := range []*domain.LedgerEntry{&first, &second} {
			created, err := insertEntry(ctx, tx, *e)
			if err != nil {
				return err
			}
			e.CreatedAt = created.CreatedAt
			if err := bumpGeneration(ctx, tx, e.PositionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.LedgerEntry{}, domain.LedgerEntry{}, err
	}
	return first, second, nil
}

// SoftDelete marks an entry and its linked partner deleted and returns both.
// check runs against each affected ledger after the update; an error rolls
// the delete back.
func (s *EntryStore) SoftDelete(ctx context.Context, id string, check domain.LedgerCheck) ([]domain.LedgerEntry, error) {
	var deleted []domain.LedgerEntry
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var positionID string
		var linked *string
		err := tx.QueryRow(ctx,
			`SELECT position_id, linked_entry_id FROM ledger_entries WHERE id = $1 AND deleted_at IS NULL`,
			id).Scan(&positionID, &linked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("postgres: load entry %s: %w", id, err)
		}

		ids := []string{id}
		positions := []string{positionID}
		if linked != nil {
			var partnerPosition string
			err := tx.QueryRow(ctx,
				`SELECT position_id FROM ledger_entries WHERE id = $1`, *linked).Scan(&partnerPosition)
			if err != nil {
				return fmt.Errorf("postgres: load linked entry %s: %w", *linked, err)
			}
			ids = append(ids, *linked)
			positions = append(positions, partnerPosition)
		}

		if err := lockPositions(ctx, tx, positions...); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`UPDATE ledger_entries SET deleted_at = NOW()
			 WHERE id = ANY($1) AND deleted_at IS NULL
			 RETURNING `+entrySelectCols, ids)
		if err != nil {
			return fmt.Errorf("postgres: soft delete %s: %w", id, err)
		}
		deleted, err = scanEntries(rows)
		if err != nil {
			return fmt.Errorf("postgres: scan deleted entries: %w", err)
		}
		if len(deleted) == 0 {
			return domain.ErrNotFound
		}

		checked := map[string]bool{}
		for _, e := range deleted {
			if checked[e.PositionID] {
				continue
			}
			checked[e.PositionID] = true
			if err := runCheck(ctx, tx, e.PositionID, check); err != nil {
				return fmt.Errorf("postgres: delete %s from %s: %w", id, e.PositionID, err)
			}
			if err := bumpGeneration(ctx, tx, e.PositionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func runCheck(ctx context.Context, tx pgx.Tx, positionID string, check domain.LedgerCheck) error {
	if check == nil {
		return nil
	}
	ledger, err := listLedger(ctx, tx, positionID)
	if err != nil {
		return err
	}
	return check(ledger)
}

func insertEntry(ctx context.Context, tx pgx.Tx, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	const query = `
		INSERT INTO ledger_entries (
			id, position_id, direction, reason, quantity, unit_price,
			total_value, fee, fee_type, linked_entry_id, notes, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)
		RETURNING created_at`

	var feeType *string
	if e.FeeType != nil {
		ft := string(*e.FeeType)
		feeType = &ft
	}

	err := tx.QueryRow(ctx, query,
		e.ID, e.PositionID, string(e.Direction), string(e.Reason),
		e.Quantity, e.UnitPrice, e.TotalValue,
		e.Fee, feeType, e.LinkedEntryID, e.Notes, e.OccurredAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: insert entry %s: %w", e.ID, err)
	}
	return e, nil
}
