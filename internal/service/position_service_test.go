package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
)

func TestPositionServiceMetrics(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "10")

	m, err := h.positionSvc.Metrics(context.Background(), "pos-x")
	require.NoError(t, err)
	require.NotNil(t, m.CurrentPrice)
	assert.True(t, m.CurrentPrice.Equal(dec("15")))
	assert.True(t, m.CurrentValue.Equal(dec("150")))
	assert.True(t, m.UnrealizedGainLoss.Equal(dec("50")))
	assert.True(t, m.UnrealizedPercentage.Equal(dec("50")))
}

func TestPositionServiceMetricsEmptyLedger(t *testing.T) {
	h := newHarness(t)
	m, err := h.positionSvc.Metrics(context.Background(), "pos-y")
	require.NoError(t, err)
	assert.True(t, m.Quantity.IsZero())
	assert.Nil(t, m.CurrentPrice)

	_, err = h.positionSvc.Metrics(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionServiceCurrencyValuedAtOne(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-usd", 0, domain.ReasonDeposit, "250", "1")

	m, err := h.positionSvc.Metrics(context.Background(), "pos-usd")
	require.NoError(t, err)
	assert.True(t, m.CurrentValue.Equal(dec("250")))
}

func TestPositionServiceSummary(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "10")
	h.record(t, "pos-y", 0, domain.ReasonPurchase, "20", "12.5")

	all, err := h.positionSvc.Summary(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalAssets, "positions without entries are not counted")
	assert.True(t, all.TotalInvested.Equal(dec("350")), "invested %s", all.TotalInvested)
	assert.True(t, all.TotalCurrentValue.Equal(dec("450")), "value %s", all.TotalCurrentValue)

	venue, err := h.positionSvc.Summary(context.Background(), "alice", "broker-a")
	require.NoError(t, err)
	assert.Equal(t, 1, venue.TotalAssets)
	assert.True(t, venue.TotalUnrealizedGainLoss.Equal(dec("50")))
	assert.True(t, venue.TotalUnrealizedPercentage.Equal(dec("50")))

	none, err := h.positionSvc.Summary(context.Background(), "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 0, none.TotalAssets)
	assert.True(t, none.TotalUnrealizedPercentage.IsZero())
}

func TestPositionServiceList(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "2", "10")

	views, err := h.positionSvc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 4)
	for _, v := range views {
		if v.Position.ID == "pos-x" {
			assert.True(t, v.Metrics.CurrentValue.Equal(dec("30")))
		}
	}
}

func TestPositionServiceOpen(t *testing.T) {
	h := newHarness(t)
	blank := " "

	pos, err := h.positionSvc.Open(context.Background(), domain.PositionKey{
		OwnerID: "alice", AssetID: "acme", VenueID: "broker-a", GoalID: &blank,
	})
	require.NoError(t, err)
	assert.Equal(t, "pos-x", pos.ID, "existing identity is reused")

	_, err = h.positionSvc.Open(context.Background(), domain.PositionKey{OwnerID: "alice", AssetID: "nope", VenueID: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.positionSvc.Open(context.Background(), domain.PositionKey{OwnerID: "alice", AssetID: "acme"})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
}

func TestPositionServiceRebuild(t *testing.T) {
	h := newHarness(t)
	h.record(t, "pos-x", 0, domain.ReasonPurchase, "10", "100")

	h.positions.rows["pos-x"] = domain.Position{ID: "pos-x", OwnerID: "alice", AssetID: "acme", VenueID: "broker-a", Quantity: dec("999")}

	n, err := h.positionSvc.Rebuild(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, h.position(t, "pos-x").Quantity.Equal(dec("10")))
}
