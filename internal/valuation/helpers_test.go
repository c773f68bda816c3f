package valuation

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/holdings/internal/domain"
)

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// entry builds a ledger entry on day n after t0. Price may be empty for
// reasons that do not carry one.
func entry(n int, reason domain.Reason, qty, price string) domain.LedgerEntry {
	effect, err := Classify(reason)
	if err != nil {
		effect.Direction = domain.FlowInflow
	}
	if price == "" {
		price = "1"
	}
	q, p := d(qty), d(price)
	return domain.LedgerEntry{
		ID:         fmt.Sprintf("e%03d", n),
		PositionID: "pos-1",
		Direction:  effect.Direction,
		Reason:     reason,
		Quantity:   q,
		UnitPrice:  p,
		TotalValue: q.Mul(p),
		OccurredAt: t0.Add(time.Duration(n) * 24 * time.Hour),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s = %s, want %s", field, got, want)
}

func assertSameState(t *testing.T, want, got State) {
	t.Helper()
	assertDecimal(t, want.Quantity.String(), got.Quantity, "quantity")
	assertDecimal(t, want.AverageCost.String(), got.AverageCost, "average cost")
	assertDecimal(t, want.TotalInvested.String(), got.TotalInvested, "total invested")
	assertDecimal(t, want.RealizedGainLoss.String(), got.RealizedGainLoss, "realized")
	assertDecimal(t, want.TotalSoldValue.String(), got.TotalSoldValue, "total sold")
}
