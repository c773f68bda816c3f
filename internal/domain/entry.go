package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FlowDirection is the semantic type of a ledger entry.
type FlowDirection string

const (
	FlowInflow  FlowDirection = "inflow"
	FlowOutflow FlowDirection = "outflow"
)

// Reason is why quantity moved. Each reason implies exactly one direction.
type Reason string

const (
	ReasonPurchase    Reason = "purchase"
	ReasonSale        Reason = "sale"
	ReasonDeposit     Reason = "deposit"
	ReasonWithdrawal  Reason = "withdrawal"
	ReasonTransferOut Reason = "transfer_out"
	ReasonTransferIn  Reason = "transfer_in"
	ReasonDividend    Reason = "dividend"
)

// Reasons returns every known reason.
func Reasons() []Reason {
	return []Reason{
		ReasonPurchase,
		ReasonSale,
		ReasonDeposit,
		ReasonWithdrawal,
		ReasonTransferOut,
		ReasonTransferIn,
		ReasonDividend,
	}
}

// FeeType says how a fee amount is to be interpreted.
type FeeType string

const (
	FeePercentOfTarget FeeType = "percent_of_target"
	FeePercentOfSource FeeType = "percent_of_source"
	FeeFixedInSource   FeeType = "fixed_in_source"
	FeeFixedInTarget   FeeType = "fixed_in_target"
)

// Valid reports whether t is a known fee type.
func (t FeeType) Valid() bool {
	switch t {
	case FeePercentOfTarget, FeePercentOfSource, FeeFixedInSource, FeeFixedInTarget:
		return true
	}
	return false
}

// LedgerEntry is one immutable recorded movement of an asset quantity into or
// out of a position. Only DeletedAt may change after creation.
type LedgerEntry struct {
	ID            string
	PositionID    string
	Direction     FlowDirection
	Reason        Reason
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	TotalValue    decimal.Decimal
	Fee           *decimal.Decimal
	FeeType       *FeeType
	LinkedEntryID *string
	Notes         string
	OccurredAt    time.Time
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// Deleted reports whether the entry has been soft-deleted.
func (e LedgerEntry) Deleted() bool {
	return e.DeletedAt != nil
}

// EntryBefore reports whether a sorts before b in ledger order, which is
// ascending by (OccurredAt, ID).
func EntryBefore(a, b LedgerEntry) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return a.ID < b.ID
}

// SortEntries orders entries in place by (OccurredAt, ID).
func SortEntries(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return EntryBefore(entries[i], entries[j])
	})
}
