// Package ledger builds ledger entries: single entries validated at
// construction, and the linked pairs recorded for transfers and exchanges.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

// MaxScale is the number of fractional digits quantities and prices may carry.
const MaxScale = 8

var one = decimal.NewFromInt(1)

// EntryParams describes a ledger entry to build.
type EntryParams struct {
	PositionID    string
	Reason        domain.Reason
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Fee           *decimal.Decimal
	FeeType       *domain.FeeType
	LinkedEntryID *string
	OccurredAt    time.Time
	Notes         string
	// Currency marks a fiat currency position: the unit price is fixed at 1
	// and purchases and sales are recorded as deposits and withdrawals.
	Currency bool
}

// NewEntry validates p and returns the entry it describes with a fresh ID and
// TotalValue = Quantity * UnitPrice.
func NewEntry(p EntryParams) (domain.LedgerEntry, error) {
	if strings.TrimSpace(p.PositionID) == "" {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: position id is required: %w", domain.ErrInvalidEntry)
	}
	if p.OccurredAt.IsZero() {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: occurred_at is required: %w", domain.ErrInvalidEntry)
	}

	reason, price := p.Reason, p.UnitPrice
	if p.Currency {
		price = one
		switch reason {
		case domain.ReasonPurchase:
			reason = domain.ReasonDeposit
		case domain.ReasonSale:
			reason = domain.ReasonWithdrawal
		}
	}

	effect, err := valuation.Classify(reason)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: %w", err)
	}
	if err := checkAmount("quantity", p.Quantity); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := checkAmount("unit price", price); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := checkFee(p.Fee, p.FeeType); err != nil {
		return domain.LedgerEntry{}, err
	}

	return domain.LedgerEntry{
		ID:            uuid.NewString(),
		PositionID:    p.PositionID,
		Direction:     effect.Direction,
		Reason:        reason,
		Quantity:      p.Quantity,
		UnitPrice:     price,
		TotalValue:    p.Quantity.Mul(price),
		Fee:           p.Fee,
		FeeType:       p.FeeType,
		LinkedEntryID: p.LinkedEntryID,
		Notes:         strings.TrimSpace(p.Notes),
		OccurredAt:    p.OccurredAt.UTC(),
	}, nil
}

func checkAmount(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("ledger: %s must be positive, got %s: %w", field, v, domain.ErrInvalidEntry)
	}
	if !v.Equal(v.Truncate(MaxScale)) {
		return fmt.Errorf("ledger: %s %s has more than %d decimal places: %w", field, v, MaxScale, domain.ErrInvalidEntry)
	}
	return nil
}

func checkFee(fee *decimal.Decimal, feeType *domain.FeeType) error {
	if (fee == nil) != (feeType == nil) {
		return &domain.InconsistentFeeError{HasFee: fee != nil, HasFeeType: feeType != nil}
	}
	if fee == nil {
		return nil
	}
	if fee.IsNegative() {
		return fmt.Errorf("ledger: fee must not be negative, got %s: %w", fee, domain.ErrInvalidEntry)
	}
	if !feeType.Valid() {
		return fmt.Errorf("ledger: unknown fee type %q: %w", string(*feeType), domain.ErrInvalidEntry)
	}
	return nil
}
