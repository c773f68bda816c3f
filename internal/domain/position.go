package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionKey identifies a position: one asset on one venue, optionally
// scoped to a savings goal, for one owner.
type PositionKey struct {
	OwnerID string
	AssetID string
	VenueID string
	GoalID  *string
}

// Position is the holding identified by a PositionKey. Quantity, AverageCost
// and TotalInvested are a cache of the last recomputation from the ledger and
// are never authoritative; Generation increases on every ledger write.
type Position struct {
	ID            string
	OwnerID       string
	AssetID       string
	VenueID       string
	GoalID        *string
	Quantity      decimal.Decimal
	AverageCost   decimal.Decimal
	TotalInvested decimal.Decimal
	Generation    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PositionSnapshot is the cacheable subset of accumulator output written back
// to the position row.
type PositionSnapshot struct {
	Quantity      decimal.Decimal
	AverageCost   decimal.Decimal
	TotalInvested decimal.Decimal
}

// PositionMetrics is the valuation of one position, computed on demand.
type PositionMetrics struct {
	Quantity             decimal.Decimal  `json:"quantity"`
	AverageCost          decimal.Decimal  `json:"average_cost"`
	TotalInvested        decimal.Decimal  `json:"total_invested"`
	CurrentPrice         *decimal.Decimal `json:"current_price,omitempty"`
	CurrentValue         decimal.Decimal  `json:"current_value"`
	UnrealizedGainLoss   decimal.Decimal  `json:"unrealized_gain_loss"`
	UnrealizedPercentage decimal.Decimal  `json:"unrealized_percentage"`
	RealizedGainLoss     decimal.Decimal  `json:"realized_gain_loss"`
	TotalSoldValue       decimal.Decimal  `json:"total_sold_value"`
}

// Summary aggregates metrics over many positions, typically one venue or a
// whole portfolio.
type Summary struct {
	TotalAssets               int             `json:"total_assets"`
	TotalInvested             decimal.Decimal `json:"total_invested"`
	TotalCurrentValue         decimal.Decimal `json:"total_current_value"`
	TotalUnrealizedGainLoss   decimal.Decimal `json:"total_unrealized_gain_loss"`
	TotalUnrealizedPercentage decimal.Decimal `json:"total_unrealized_percentage"`
	TotalRealizedGainLoss     decimal.Decimal `json:"total_realized_gain_loss"`
}
