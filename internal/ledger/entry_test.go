package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
)

var when = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func feeType(t domain.FeeType) *domain.FeeType { return &t }

func TestNewEntry(t *testing.T) {
	e, err := NewEntry(EntryParams{
		PositionID: "pos-1",
		Reason:     domain.ReasonPurchase,
		Quantity:   dec("2.5"),
		UnitPrice:  dec("40.12345678"),
		Fee:        decPtr("1.5"),
		FeeType:    feeType(domain.FeeFixedInSource),
		OccurredAt: when,
		Notes:      "  monthly buy ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "pos-1", e.PositionID)
	assert.Equal(t, domain.FlowInflow, e.Direction)
	assert.Equal(t, domain.ReasonPurchase, e.Reason)
	assert.True(t, dec("100.30864195").Equal(e.TotalValue), "total value %s", e.TotalValue)
	assert.Equal(t, "monthly buy", e.Notes)
	assert.Nil(t, e.LinkedEntryID)
}

func TestNewEntryIDsAreUnique(t *testing.T) {
	p := EntryParams{PositionID: "pos-1", Reason: domain.ReasonDeposit, Quantity: dec("1"), UnitPrice: dec("1"), OccurredAt: when}
	a, err := NewEntry(p)
	require.NoError(t, err)
	b, err := NewEntry(p)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewEntryCurrencyPosition(t *testing.T) {
	tests := []struct {
		reason domain.Reason
		want   domain.Reason
		dir    domain.FlowDirection
	}{
		{domain.ReasonPurchase, domain.ReasonDeposit, domain.FlowInflow},
		{domain.ReasonSale, domain.ReasonWithdrawal, domain.FlowOutflow},
		{domain.ReasonDividend, domain.ReasonDividend, domain.FlowInflow},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			e, err := NewEntry(EntryParams{
				PositionID: "usd",
				Reason:     tt.reason,
				Quantity:   dec("250"),
				UnitPrice:  dec("1.0931"),
				OccurredAt: when,
				Currency:   true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Reason)
			assert.Equal(t, tt.dir, e.Direction)
			assert.True(t, e.UnitPrice.Equal(one))
			assert.True(t, e.TotalValue.Equal(dec("250")))
		})
	}
}

func TestNewEntryValidation(t *testing.T) {
	base := func() EntryParams {
		return EntryParams{
			PositionID: "pos-1",
			Reason:     domain.ReasonSale,
			Quantity:   dec("1"),
			UnitPrice:  dec("10"),
			OccurredAt: when,
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *EntryParams)
		wantErr error
	}{
		{"missing position", func(p *EntryParams) { p.PositionID = " " }, domain.ErrInvalidEntry},
		{"missing time", func(p *EntryParams) { p.OccurredAt = time.Time{} }, domain.ErrInvalidEntry},
		{"zero quantity", func(p *EntryParams) { p.Quantity = decimal.Zero }, domain.ErrInvalidEntry},
		{"negative price", func(p *EntryParams) { p.UnitPrice = dec("-1") }, domain.ErrInvalidEntry},
		{"quantity scale", func(p *EntryParams) { p.Quantity = dec("0.000000001") }, domain.ErrInvalidEntry},
		{"price scale", func(p *EntryParams) { p.UnitPrice = dec("1.123456789") }, domain.ErrInvalidEntry},
		{"fee without type", func(p *EntryParams) { p.Fee = decPtr("1") }, domain.ErrInconsistentFee},
		{"type without fee", func(p *EntryParams) { p.FeeType = feeType(domain.FeePercentOfSource) }, domain.ErrInconsistentFee},
		{"negative fee", func(p *EntryParams) {
			p.Fee = decPtr("-0.5")
			p.FeeType = feeType(domain.FeeFixedInTarget)
		}, domain.ErrInvalidEntry},
		{"unknown fee type", func(p *EntryParams) {
			p.Fee = decPtr("0.5")
			p.FeeType = feeType("flat")
		}, domain.ErrInvalidEntry},
		{"unknown reason", func(p *EntryParams) { p.Reason = "split" }, domain.ErrUnknownReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			_, err := NewEntry(p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewEntryTrailingZerosWithinScale(t *testing.T) {
	_, err := NewEntry(EntryParams{
		PositionID: "pos-1",
		Reason:     domain.ReasonPurchase,
		Quantity:   dec("1.50000000000"),
		UnitPrice:  dec("3"),
		OccurredAt: when,
	})
	assert.NoError(t, err)
}

func TestInconsistentFeeErrorDetail(t *testing.T) {
	_, err := NewEntry(EntryParams{
		PositionID: "pos-1",
		Reason:     domain.ReasonPurchase,
		Quantity:   dec("1"),
		UnitPrice:  dec("1"),
		Fee:        decPtr("2"),
		OccurredAt: when,
	})
	var fee *domain.InconsistentFeeError
	require.True(t, errors.As(err, &fee))
	assert.True(t, fee.HasFee)
	assert.False(t, fee.HasFeeType)
}
