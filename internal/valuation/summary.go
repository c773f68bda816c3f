package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// Summarize reduces per-position metrics into totals. Input order does not
// matter.
func Summarize(metrics []domain.PositionMetrics) domain.Summary {
	sum := domain.Summary{
		TotalAssets:               len(metrics),
		TotalInvested:             decimal.Zero,
		TotalCurrentValue:         decimal.Zero,
		TotalUnrealizedGainLoss:   decimal.Zero,
		TotalUnrealizedPercentage: decimal.Zero,
		TotalRealizedGainLoss:     decimal.Zero,
	}
	for _, m := range metrics {
		sum.TotalInvested = sum.TotalInvested.Add(m.TotalInvested)
		sum.TotalCurrentValue = sum.TotalCurrentValue.Add(m.CurrentValue)
		sum.TotalUnrealizedGainLoss = sum.TotalUnrealizedGainLoss.Add(m.UnrealizedGainLoss)
		sum.TotalRealizedGainLoss = sum.TotalRealizedGainLoss.Add(m.RealizedGainLoss)
	}
	if sum.TotalInvested.IsPositive() {
		sum.TotalUnrealizedPercentage = sum.TotalUnrealizedGainLoss.Div(sum.TotalInvested).Mul(hundred)
	}
	return sum
}
