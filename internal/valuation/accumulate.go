package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// State is the running result of folding a ledger.
type State struct {
	Quantity         decimal.Decimal
	AverageCost      decimal.Decimal
	TotalInvested    decimal.Decimal
	RealizedGainLoss decimal.Decimal
	TotalSoldValue   decimal.Decimal
}

// Snapshot returns the cacheable part of the state.
func (s State) Snapshot() domain.PositionSnapshot {
	return domain.PositionSnapshot{
		Quantity:      s.Quantity,
		AverageCost:   s.AverageCost,
		TotalInvested: s.TotalInvested,
	}
}

// Accumulate folds a ledger, ordered ascending by (OccurredAt, ID), into
// weighted-average-cost state. Soft-deleted entries are skipped. A ledger with
// no live entries returns domain.ErrEmptyLedger so callers can tell "no
// history" apart from "fully liquidated".
func Accumulate(entries []domain.LedgerEntry) (State, error) {
	s := State{
		Quantity:         decimal.Zero,
		AverageCost:      decimal.Zero,
		TotalInvested:    decimal.Zero,
		RealizedGainLoss: decimal.Zero,
		TotalSoldValue:   decimal.Zero,
	}

	var prev *domain.LedgerEntry
	applied := 0
	for i := range entries {
		e := entries[i]
		if e.Deleted() {
			continue
		}
		if prev != nil && domain.EntryBefore(e, *prev) {
			return State{}, fmt.Errorf("valuation: entry %s: %w", e.ID, domain.ErrUnorderedLedger)
		}
		next, err := apply(s, e)
		if err != nil {
			return State{}, fmt.Errorf("valuation: entry %s: %w", e.ID, err)
		}
		s = next
		prev = &entries[i]
		applied++
	}
	if applied == 0 {
		return State{}, domain.ErrEmptyLedger
	}

	if s.Quantity.IsNegative() {
		s.Quantity = decimal.Zero
	}
	return s, nil
}

// apply folds a single entry into s. s is passed by value so a failing entry
// leaves the caller's state untouched.
func apply(s State, e domain.LedgerEntry) (State, error) {
	effect, err := Classify(e.Reason)
	if err != nil {
		return s, err
	}
	qty := e.Quantity

	switch {
	case effect.Direction == domain.FlowInflow && effect.AffectsCostBasis:
		invested := s.TotalInvested.Add(qty.Mul(e.UnitPrice))
		quantity := s.Quantity.Add(qty)
		if quantity.IsPositive() {
			s.AverageCost = invested.Div(quantity)
		}
		s.TotalInvested = invested
		s.Quantity = quantity

	case effect.Direction == domain.FlowInflow:
		s.Quantity = s.Quantity.Add(qty)

	case effect.AffectsCostBasis:
		costBasis := qty.Mul(s.AverageCost)
		proceeds := qty.Mul(e.UnitPrice)
		s.RealizedGainLoss = s.RealizedGainLoss.Add(proceeds.Sub(costBasis))
		s.TotalSoldValue = s.TotalSoldValue.Add(proceeds)
		s.Quantity = s.Quantity.Sub(qty)
		if s.Quantity.IsPositive() {
			s.TotalInvested = s.Quantity.Mul(s.AverageCost)
		} else {
			s.TotalInvested = decimal.Zero
			s.AverageCost = decimal.Zero
		}

	default:
		s.Quantity = s.Quantity.Sub(qty)
		// Draining a position through a non-sale outflow forgets its cost
		// basis. Kept for compatibility with existing ledgers even though no
		// gain was realized.
		if !s.Quantity.IsPositive() {
			s.Quantity = decimal.Zero
			s.AverageCost = decimal.Zero
			s.TotalInvested = decimal.Zero
		}
	}
	return s, nil
}
