package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/holdings/internal/domain"
)

func TestSummarize(t *testing.T) {
	metrics := []domain.PositionMetrics{
		{
			TotalInvested:      d("1000"),
			CurrentValue:       d("1200"),
			UnrealizedGainLoss: d("200"),
			RealizedGainLoss:   d("50"),
		},
		{
			TotalInvested:      d("3000"),
			CurrentValue:       d("2900"),
			UnrealizedGainLoss: d("-100"),
			RealizedGainLoss:   d("-10"),
		},
	}

	got := Summarize(metrics)
	assert.Equal(t, 2, got.TotalAssets)
	assertDecimal(t, "4000", got.TotalInvested, "invested")
	assertDecimal(t, "4100", got.TotalCurrentValue, "current value")
	assertDecimal(t, "100", got.TotalUnrealizedGainLoss, "unrealized")
	assertDecimal(t, "2.5", got.TotalUnrealizedPercentage, "unrealized pct")
	assertDecimal(t, "40", got.TotalRealizedGainLoss, "realized")

	reversed := Summarize([]domain.PositionMetrics{metrics[1], metrics[0]})
	assert.True(t, got.TotalUnrealizedPercentage.Equal(reversed.TotalUnrealizedPercentage))
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	assert.Equal(t, 0, got.TotalAssets)
	assertDecimal(t, "0", got.TotalUnrealizedPercentage, "unrealized pct")
}
