// Package valuation derives position state from an ordered ledger. Every
// function here is pure: the same ledger always yields the same result, so
// recomputations may run concurrently without coordination.
package valuation

import "github.com/alanyoungcy/holdings/internal/domain"

// Effect is what a reason does to a position.
type Effect struct {
	Direction        domain.FlowDirection
	AffectsCostBasis bool
}

// Classify maps a reason to its effect. The reason set is closed; anything
// else yields an *domain.UnknownReasonError.
func Classify(reason domain.Reason) (Effect, error) {
	switch reason {
	case domain.ReasonPurchase:
		return Effect{Direction: domain.FlowInflow, AffectsCostBasis: true}, nil
	case domain.ReasonDeposit, domain.ReasonTransferIn, domain.ReasonDividend:
		return Effect{Direction: domain.FlowInflow}, nil
	case domain.ReasonSale:
		return Effect{Direction: domain.FlowOutflow, AffectsCostBasis: true}, nil
	case domain.ReasonWithdrawal, domain.ReasonTransferOut:
		return Effect{Direction: domain.FlowOutflow}, nil
	default:
		return Effect{}, &domain.UnknownReasonError{Reason: reason}
	}
}
