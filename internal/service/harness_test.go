package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/ledger"
)

var t0 = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// harness wires every service against in-memory stores holding:
// pos-x and pos-y: ACME on two brokers; pos-usd: USD cash; pos-eur: EUR cash.
type harness struct {
	positions *memPositions
	assets    memAssets
	entries   *memEntries
	locks     *fakeLocks
	bus       *recordingBus
	audit     *recordingAudit
	notifier  *recordingNotifier

	entrySvc    *EntryService
	transferSvc *TransferService
	positionSvc *PositionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		positions: newMemPositions(
			domain.Position{ID: "pos-x", OwnerID: "alice", AssetID: "acme", VenueID: "broker-a"},
			domain.Position{ID: "pos-y", OwnerID: "alice", AssetID: "acme", VenueID: "broker-b"},
			domain.Position{ID: "pos-usd", OwnerID: "alice", AssetID: "usd", VenueID: "bank"},
			domain.Position{ID: "pos-eur", OwnerID: "alice", AssetID: "eur", VenueID: "bank"},
		),
		assets: memAssets{
			"acme": {ID: "acme", Symbol: "ACME", Kind: domain.AssetKindStock},
			"usd":  {ID: "usd", Symbol: "USD", Kind: domain.AssetKindCurrency},
			"eur":  {ID: "eur", Symbol: "EUR", Kind: domain.AssetKindCurrency},
		},
		locks:    newFakeLocks(),
		bus:      &recordingBus{},
		audit:    &recordingAudit{},
		notifier: &recordingNotifier{},
	}
	h.entries = newMemEntries(h.positions)
	lockOpts := LockOptions{TTL: time.Second, Wait: 0}

	h.entrySvc = NewEntryService(h.positions, h.assets, h.entries, h.locks, lockOpts,
		h.bus, h.audit, h.notifier, quietLogger())
	h.transferSvc = NewTransferService(h.positions, h.assets, h.entries, h.locks, lockOpts,
		dec("0.01"), h.bus, h.audit, h.notifier, quietLogger())
	h.positionSvc = NewPositionService(h.positions, h.assets, h.entries,
		staticPrices{"acme": dec("15")}, 2, quietLogger())
	return h
}

func (h *harness) record(t *testing.T, positionID string, day int, reason domain.Reason, qty, price string) domain.LedgerEntry {
	t.Helper()
	e, err := h.entrySvc.Record(context.Background(), positionID, ledger.EntryParams{
		Reason:     reason,
		Quantity:   dec(qty),
		UnitPrice:  dec(price),
		OccurredAt: t0.AddDate(0, 0, day),
	})
	require.NoError(t, err)
	return e
}

func (h *harness) position(t *testing.T, id string) domain.Position {
	t.Helper()
	p, err := h.positions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
