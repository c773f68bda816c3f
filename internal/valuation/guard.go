package valuation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// Available returns the quantity an ordered ledger holds. An empty ledger
// holds nothing.
func Available(entries []domain.LedgerEntry) (decimal.Decimal, error) {
	s, err := Accumulate(entries)
	if errors.Is(err, domain.ErrEmptyLedger) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return s.Quantity, nil
}

// CheckOutflow verifies that amount can leave the position described by the
// ordered ledger. It returns *domain.InsufficientBalanceError when amount
// exceeds the available quantity.
//
// The result is only meaningful while the ledger cannot change; callers run it
// inside the same critical section as the write it protects.
func CheckOutflow(entries []domain.LedgerEntry, amount decimal.Decimal) error {
	available, err := Available(entries)
	if err != nil {
		return err
	}
	if amount.GreaterThan(available) {
		return &domain.InsufficientBalanceError{Requested: amount, Available: available}
	}
	return nil
}

// CheckBalance walks an ordered ledger and verifies that no outflow takes more
// than the quantity held just before it. An empty ledger passes.
func CheckBalance(entries []domain.LedgerEntry) error {
	held := decimal.Zero
	for _, e := range entries {
		if e.Deleted() {
			continue
		}
		effect, err := Classify(e.Reason)
		if err != nil {
			return fmt.Errorf("valuation: entry %s: %w", e.ID, err)
		}
		if effect.Direction == domain.FlowInflow {
			held = held.Add(e.Quantity)
			continue
		}
		if e.Quantity.GreaterThan(held) {
			return &domain.InsufficientBalanceError{Requested: e.Quantity, Available: held}
		}
		held = held.Sub(e.Quantity)
	}
	return nil
}

// BalanceCheck adapts CheckBalance to a domain.LedgerCheck.
func BalanceCheck() domain.LedgerCheck {
	return CheckBalance
}

// OutflowCheck adapts CheckOutflow to a domain.LedgerCheck.
func OutflowCheck(amount decimal.Decimal) domain.LedgerCheck {
	return func(ledger []domain.LedgerEntry) error {
		return CheckOutflow(ledger, amount)
	}
}
