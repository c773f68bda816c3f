package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputeMetrics values an ordered ledger against currentPrice. A nil price
// values the holding at zero.
func ComputeMetrics(entries []domain.LedgerEntry, currentPrice *decimal.Decimal) (domain.PositionMetrics, error) {
	s, err := Accumulate(entries)
	if err != nil {
		return domain.PositionMetrics{}, err
	}
	return MetricsFromState(s, currentPrice), nil
}

// MetricsFromState values an already accumulated state.
func MetricsFromState(s State, currentPrice *decimal.Decimal) domain.PositionMetrics {
	price := decimal.Zero
	if currentPrice != nil {
		price = *currentPrice
	}
	currentValue := s.Quantity.Mul(price)

	unrealized := decimal.Zero
	unrealizedPct := decimal.Zero
	if s.Quantity.IsPositive() {
		cost := s.Quantity.Mul(s.AverageCost)
		unrealized = currentValue.Sub(cost)
		if s.AverageCost.IsPositive() {
			unrealizedPct = unrealized.Div(cost).Mul(hundred)
		}
	}

	m := domain.PositionMetrics{
		Quantity:             s.Quantity,
		AverageCost:          s.AverageCost,
		TotalInvested:        s.TotalInvested,
		CurrentValue:         currentValue,
		UnrealizedGainLoss:   unrealized,
		UnrealizedPercentage: unrealizedPct,
		RealizedGainLoss:     s.RealizedGainLoss,
		TotalSoldValue:       s.TotalSoldValue,
	}
	if currentPrice != nil {
		p := *currentPrice
		m.CurrentPrice = &p
	}
	return m
}
