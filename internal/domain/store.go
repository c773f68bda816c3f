package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerCheck validates a position's ledger, as read inside the write
// transaction, before a new entry is committed. Returning an error aborts the
// write.
type LedgerCheck func(ledger []LedgerEntry) error

// EntryStore persists ledger entries. List returns live entries ordered by
// (occurred_at, id). Create and CreatePair are atomic: the check runs against
// the ledger of the first entry's position while that position is locked, and
// a pair is committed together or not at all. SoftDelete runs its check
// against every affected ledger as it would read after the delete.
type EntryStore interface {
	List(ctx context.Context, positionID string) ([]LedgerEntry, error)
	ListPage(ctx context.Context, positionID string, opts ListOpts) ([]LedgerEntry, error)
	GetByID(ctx context.Context, id string) (LedgerEntry, error)
	Create(ctx context.Context, entry LedgerEntry, check LedgerCheck) (LedgerEntry, error)
	CreatePair(ctx context.Context, first, second LedgerEntry, check LedgerCheck) (LedgerEntry, LedgerEntry, error)
	SoftDelete(ctx context.Context, id string, check LedgerCheck) ([]LedgerEntry, error)
}

// PositionStore persists position identities and their cached balances.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	GetOrCreate(ctx context.Context, key PositionKey) (Position, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Position, error)
	ListByVenue(ctx context.Context, ownerID, venueID string) ([]Position, error)
	ListAll(ctx context.Context, opts ListOpts) ([]Position, error)
	UpdateSnapshot(ctx context.Context, id string, snap PositionSnapshot) error
}

// AssetStore provides asset metadata.
type AssetStore interface {
	GetByID(ctx context.Context, id string) (Asset, error)
	Upsert(ctx context.Context, asset Asset) error
}

// PriceStore reads stored price quotes. Quotes are written elsewhere.
type PriceStore interface {
	Latest(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error)
}

// PriceReader yields the current price of an asset, or nil when none is known.
type PriceReader interface {
	LatestPrice(ctx context.Context, assetID string) (*decimal.Decimal, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditFilter narrows an audit log query. Empty fields match everything.
type AuditFilter struct {
	Event      string
	PositionID string
	ListOpts
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
