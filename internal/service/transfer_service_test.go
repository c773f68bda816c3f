package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/ledger"
)

func TestTransferServiceRecordsLinkedPair(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "80", "12.5")

	pair, err := h.transferSvc.Transfer(context.Background(), ledger.TransferRequest{
		SourcePositionID: "pos-x",
		TargetPositionID: "pos-y",
		Quantity:         dec("50"),
		OccurredAt:       t0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReasonTransferOut, pair.Source.Reason)
	assert.Equal(t, domain.ReasonTransferIn, pair.Target.Reason)
	assert.Equal(t, pair.Target.ID, *pair.Source.LinkedEntryID)
	assert.Equal(t, pair.Source.ID, *pair.Target.LinkedEntryID)
	assert.True(t, pair.Source.Quantity.Equal(pair.Target.Quantity))

	x, y := h.position(t, "pos-x"), h.position(t, "pos-y")
	assert.True(t, x.Quantity.Equal(dec("30")), "source quantity %s", x.Quantity)
	assert.True(t, y.Quantity.Equal(dec("50")), "target quantity %s", y.Quantity)
	assert.Equal(t, int64(1), y.Generation)

	assert.Contains(t, h.notifier.names(), domain.EventTransferRecorded)
	assert.ElementsMatch(t, []string{"position:pos-x", "position:pos-y"}, h.locks.acquired[len(h.locks.acquired)-2:])
	assert.Empty(t, h.locks.held)
}

func TestTransferServiceInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "100")

	_, err := h.transferSvc.Transfer(context.Background(), ledger.TransferRequest{
		SourcePositionID: "pos-x", TargetPositionID: "pos-y", Quantity: dec("11"), OccurredAt: t0.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	target, err := h.entries.List(context.Background(), "pos-y")
	require.NoError(t, err)
	assert.Empty(t, target, "no half-written pair")
	assert.Contains(t, h.notifier.names(), domain.EventOutflowRejected)
}

func TestTransferServiceRequiresSameAsset(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "100")

	_, err := h.transferSvc.Transfer(context.Background(), ledger.TransferRequest{
		SourcePositionID: "pos-x", TargetPositionID: "pos-usd", Quantity: dec("1"), OccurredAt: t0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
}

func TestTransferServiceCurrencyAtParValue(t *testing.T) {
	h := newHarness(t)
	h.positions.rows["pos-usd2"] = domain.Position{ID: "pos-usd2", OwnerID: "alice", AssetID: "usd", VenueID: "broker-a"}
	h.record(t, "pos-usd", 0, domain.ReasonDeposit, "1000", "1")

	pair, err := h.transferSvc.Transfer(context.Background(), ledger.TransferRequest{
		SourcePositionID: "pos-usd", TargetPositionID: "pos-usd2", Quantity: dec("250"), OccurredAt: t0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.True(t, pair.Target.UnitPrice.Equal(dec("1")))
}

func TestTransferServiceExchangeBetweenCurrencies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "pos-usd", 0, domain.ReasonDeposit, "1000", "1")

	pair, err := h.transferSvc.Exchange(ctx, ledger.ExchangeRequest{
		SourcePositionID: "pos-usd",
		TargetPositionID: "pos-eur",
		SourceQuantity:   dec("500"),
		TargetQuantity:   dec("460"),
		ExchangeRate:     dec("0.92"),
		OccurredAt:       t0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonWithdrawal, pair.Source.Reason)
	assert.Equal(t, domain.ReasonDeposit, pair.Target.Reason)
	assert.True(t, pair.Source.UnitPrice.Equal(dec("1")))
	assert.True(t, pair.Target.UnitPrice.Equal(dec("1")))

	usd, err := h.positionSvc.Metrics(ctx, "pos-usd")
	require.NoError(t, err)
	assert.True(t, usd.Quantity.Equal(dec("500")), "usd quantity %s", usd.Quantity)
	assert.True(t, usd.RealizedGainLoss.IsZero(), "usd realized %s", usd.RealizedGainLoss)
	assert.True(t, usd.TotalSoldValue.IsZero())

	eur, err := h.positionSvc.Metrics(ctx, "pos-eur")
	require.NoError(t, err)
	assert.True(t, eur.Quantity.Equal(dec("460")), "eur quantity %s", eur.Quantity)
	assert.True(t, eur.CurrentValue.Equal(dec("460")))
	assert.True(t, eur.RealizedGainLoss.IsZero())

	summary, err := h.positionSvc.Summary(ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, summary.TotalRealizedGainLoss.IsZero(), "summary realized %s", summary.TotalRealizedGainLoss)
	assert.Contains(t, h.notifier.names(), domain.EventExchangeRecorded)
}

func TestTransferServiceExchangeCurrencyForStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "pos-usd", 0, domain.ReasonDeposit, "1000", "1")

	pair, err := h.transferSvc.Exchange(ctx, ledger.ExchangeRequest{
		SourcePositionID: "pos-usd",
		TargetPositionID: "pos-x",
		SourceQuantity:   dec("500"),
		TargetQuantity:   dec("4"),
		ExchangeRate:     dec("0.008"),
		OccurredAt:       t0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonWithdrawal, pair.Source.Reason)
	assert.Equal(t, domain.ReasonPurchase, pair.Target.Reason)

	usd, err := h.positionSvc.Metrics(ctx, "pos-usd")
	require.NoError(t, err)
	assert.True(t, usd.Quantity.Equal(dec("500")))
	assert.True(t, usd.RealizedGainLoss.IsZero())

	// Cost basis is in dollars: 500 USD for 4 shares.
	acme, err := h.positionSvc.Metrics(ctx, "pos-x")
	require.NoError(t, err)
	assert.True(t, acme.Quantity.Equal(dec("4")))
	assert.True(t, acme.AverageCost.Equal(dec("125")), "average cost %s", acme.AverageCost)
	assert.True(t, acme.TotalInvested.Equal(dec("500")), "invested %s", acme.TotalInvested)
	assert.True(t, acme.UnrealizedGainLoss.Equal(dec("-440")), "unrealized %s", acme.UnrealizedGainLoss)
}

func TestTransferServiceExchangeStockForCurrency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "100")

	pair, err := h.transferSvc.Exchange(ctx, ledger.ExchangeRequest{
		SourcePositionID: "pos-x",
		TargetPositionID: "pos-usd",
		SourceQuantity:   dec("10"),
		TargetQuantity:   dec("1200"),
		ExchangeRate:     dec("120"),
		OccurredAt:       t0.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonSale, pair.Source.Reason)
	assert.True(t, pair.Source.UnitPrice.Equal(dec("120")))
	assert.Equal(t, domain.ReasonDeposit, pair.Target.Reason)

	acme, err := h.positionSvc.Metrics(ctx, "pos-x")
	require.NoError(t, err)
	assert.True(t, acme.Quantity.IsZero())
	assert.True(t, acme.RealizedGainLoss.Equal(dec("200")), "realized %s", acme.RealizedGainLoss)
	assert.True(t, acme.TotalSoldValue.Equal(dec("1200")))

	usd, err := h.positionSvc.Metrics(ctx, "pos-usd")
	require.NoError(t, err)
	assert.True(t, usd.Quantity.Equal(dec("1200")))
	assert.True(t, usd.RealizedGainLoss.IsZero())
}

func TestTransferServiceExchangeRateDrift(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-usd", 0, domain.ReasonDeposit, "1000", "1")

	_, err := h.transferSvc.Exchange(context.Background(), ledger.ExchangeRequest{
		SourcePositionID: "pos-usd",
		TargetPositionID: "pos-eur",
		SourceQuantity:   dec("500"),
		TargetQuantity:   dec("400"),
		ExchangeRate:     dec("0.92"),
		OccurredAt:       t0.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
}
