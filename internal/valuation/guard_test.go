package valuation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
)

func TestCheckOutflow(t *testing.T) {
	ledger := []domain.LedgerEntry{
		entry(1, domain.ReasonPurchase, "10", "100"),
		entry(2, domain.ReasonSale, "4", "150"),
	}

	t.Run("within balance", func(t *testing.T) {
		assert.NoError(t, CheckOutflow(ledger, d("6")))
	})

	t.Run("exceeds balance", func(t *testing.T) {
		err := CheckOutflow(ledger, d("100"))
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		var insufficient *domain.InsufficientBalanceError
		require.True(t, errors.As(err, &insufficient))
		assertDecimal(t, "6", insufficient.Available, "available")
		assertDecimal(t, "100", insufficient.Requested, "requested")
	})

	t.Run("empty ledger has nothing available", func(t *testing.T) {
		err := CheckOutflow(nil, d("0.1"))
		var insufficient *domain.InsufficientBalanceError
		require.True(t, errors.As(err, &insufficient))
		assertDecimal(t, "0", insufficient.Available, "available")
	})

	t.Run("ledger errors propagate", func(t *testing.T) {
		err := CheckOutflow([]domain.LedgerEntry{entry(1, "gift", "1", "1")}, d("1"))
		assert.ErrorIs(t, err, domain.ErrUnknownReason)
	})
}

func TestOutflowCheck(t *testing.T) {
	check := OutflowCheck(d("5"))
	assert.NoError(t, check([]domain.LedgerEntry{entry(1, domain.ReasonDeposit, "5", "")}))
	assert.ErrorIs(t, check([]domain.LedgerEntry{entry(1, domain.ReasonDeposit, "4.99", "")}), domain.ErrInsufficientBalance)
}

func TestCheckBalance(t *testing.T) {
	tests := []struct {
		name      string
		ledger    []domain.LedgerEntry
		available string // empty when the ledger is consistent
	}{
		{name: "empty", ledger: nil},
		{
			name: "fully covered",
			ledger: []domain.LedgerEntry{
				entry(1, domain.ReasonPurchase, "10", "100"),
				entry(2, domain.ReasonSale, "4", "120"),
				entry(3, domain.ReasonTransferOut, "6", "100"),
			},
		},
		{
			name: "sale without a purchase",
			ledger: []domain.LedgerEntry{
				entry(2, domain.ReasonSale, "10", "120"),
			},
			available: "0",
		},
		{
			name: "final quantity fine but dips below zero",
			ledger: []domain.LedgerEntry{
				entry(1, domain.ReasonDeposit, "2", ""),
				entry(2, domain.ReasonWithdrawal, "5", ""),
				entry(3, domain.ReasonDeposit, "10", ""),
			},
			available: "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BalanceCheck()(tt.ledger)
			if tt.available == "" {
				assert.NoError(t, err)
				return
			}
			var insufficient *domain.InsufficientBalanceError
			require.ErrorAs(t, err, &insufficient)
			assertDecimal(t, tt.available, insufficient.Available, "available")
		})
	}
}

func TestCheckBalanceSkipsDeletedEntries(t *testing.T) {
	purchase := entry(1, domain.ReasonPurchase, "10", "100")
	purchase.DeletedAt = &t0
	err := CheckBalance([]domain.LedgerEntry{purchase, entry(2, domain.ReasonSale, "10", "120")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}
