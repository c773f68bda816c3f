package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/valuation"
)

// Pair is two entries recorded together, each referencing the other through
// LinkedEntryID. Source is the outgoing leg and carries any fee.
type Pair struct {
	Source domain.LedgerEntry
	Target domain.LedgerEntry
}

// TransferRequest moves a quantity of the same asset between two positions.
type TransferRequest struct {
	SourcePositionID string
	TargetPositionID string
	Quantity         decimal.Decimal
	// UnitPrice values the moved quantity. When nil the source position's
	// average cost is used.
	UnitPrice  *decimal.Decimal
	OccurredAt time.Time
	Fee        *decimal.Decimal
	FeeType    *domain.FeeType
	Notes      string
	Currency   bool
}

// ExchangeRequest converts SourceQuantity of one asset into TargetQuantity of
// another. ExchangeRate is target units per source unit, so TargetQuantity is
// expected to be close to SourceQuantity * ExchangeRate; BuildExchange trusts
// both.
type ExchangeRequest struct {
	SourcePositionID string
	TargetPositionID string
	SourceQuantity   decimal.Decimal
	TargetQuantity   decimal.Decimal
	ExchangeRate     decimal.Decimal
	OccurredAt       time.Time
	Fee              *decimal.Decimal
	FeeType          *domain.FeeType
	Notes            string
	// SourceCurrency and TargetCurrency mark legs on currency positions,
	// which are booked as withdrawals and deposits at par.
	SourceCurrency bool
	TargetCurrency bool
}

// BuildTransfer checks that the source ledger holds req.Quantity and returns a
// transfer_out entry for the source and a transfer_in entry for the target.
// sourceLedger must be ordered by (OccurredAt, ID).
func BuildTransfer(req TransferRequest, sourceLedger []domain.LedgerEntry) (Pair, error) {
	if err := checkEnds(req.SourcePositionID, req.TargetPositionID); err != nil {
		return Pair{}, err
	}
	if err := valuation.CheckOutflow(sourceLedger, req.Quantity); err != nil {
		return Pair{}, fmt.Errorf("ledger: transfer from %s: %w", req.SourcePositionID, err)
	}

	price, err := transferPrice(req, sourceLedger)
	if err != nil {
		return Pair{}, err
	}

	out, err := NewEntry(EntryParams{
		PositionID: req.SourcePositionID,
		Reason:     domain.ReasonTransferOut,
		Quantity:   req.Quantity,
		UnitPrice:  price,
		Fee:        req.Fee,
		FeeType:    req.FeeType,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
	})
	if err != nil {
		return Pair{}, err
	}
	in, err := NewEntry(EntryParams{
		PositionID: req.TargetPositionID,
		Reason:     domain.ReasonTransferIn,
		Quantity:   req.Quantity,
		UnitPrice:  price,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
	})
	if err != nil {
		return Pair{}, err
	}
	return link(out, in), nil
}

func transferPrice(req TransferRequest, sourceLedger []domain.LedgerEntry) (decimal.Decimal, error) {
	if req.Currency {
		return one, nil
	}
	if req.UnitPrice != nil {
		return *req.UnitPrice, nil
	}
	state, err := valuation.Accumulate(sourceLedger)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: transfer price: %w", err)
	}
	if !state.AverageCost.IsPositive() {
		return decimal.Zero, fmt.Errorf("ledger: source %s has no cost basis, unit price is required: %w",
			req.SourcePositionID, domain.ErrInvalidEntry)
	}
	return state.AverageCost.Round(MaxScale), nil
}

// BuildExchange checks that the source ledger holds req.SourceQuantity and
// returns a sale on the source position and a purchase on the target
// position. The fee stays on the source leg.
//
// Between two non-currency assets the sale is priced at the exchange rate and
// the purchase at its inverse. A currency leg is booked at par as a
// withdrawal or deposit. When the source is currency the purchase is priced
// at SourceQuantity / TargetQuantity, so its cost basis is in source-currency
// units; when the target is currency the sale is priced at the rate.
func BuildExchange(req ExchangeRequest, sourceLedger []domain.LedgerEntry) (Pair, error) {
	if err := checkEnds(req.SourcePositionID, req.TargetPositionID); err != nil {
		return Pair{}, err
	}
	if !req.ExchangeRate.IsPositive() {
		return Pair{}, fmt.Errorf("ledger: exchange rate must be positive, got %s: %w", req.ExchangeRate, domain.ErrInvalidEntry)
	}
	if !req.TargetQuantity.IsPositive() {
		return Pair{}, fmt.Errorf("ledger: target quantity must be positive, got %s: %w", req.TargetQuantity, domain.ErrInvalidEntry)
	}
	if err := valuation.CheckOutflow(sourceLedger, req.SourceQuantity); err != nil {
		return Pair{}, fmt.Errorf("ledger: exchange from %s: %w", req.SourcePositionID, err)
	}
	purchasePrice, err := exchangePurchasePrice(req)
	if err != nil {
		return Pair{}, err
	}

	sale, err := NewEntry(EntryParams{
		PositionID: req.SourcePositionID,
		Reason:     domain.ReasonSale,
		Quantity:   req.SourceQuantity,
		UnitPrice:  req.ExchangeRate.Round(MaxScale),
		Fee:        req.Fee,
		FeeType:    req.FeeType,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
		Currency:   req.SourceCurrency,
	})
	if err != nil {
		return Pair{}, err
	}
	purchase, err := NewEntry(EntryParams{
		PositionID: req.TargetPositionID,
		Reason:     domain.ReasonPurchase,
		Quantity:   req.TargetQuantity,
		UnitPrice:  purchasePrice,
		OccurredAt: req.OccurredAt,
		Notes:      req.Notes,
		Currency:   req.TargetCurrency,
	})
	if err != nil {
		return Pair{}, err
	}
	return link(sale, purchase), nil
}

func exchangePurchasePrice(req ExchangeRequest) (decimal.Decimal, error) {
	var price decimal.Decimal
	switch {
	case req.TargetCurrency:
		return one, nil
	case req.SourceCurrency:
		price = req.SourceQuantity.DivRound(req.TargetQuantity, MaxScale)
	default:
		price = one.DivRound(req.ExchangeRate, MaxScale)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("ledger: target unit price for rate %s is below %d decimal places: %w",
			req.ExchangeRate, MaxScale, domain.ErrInvalidEntry)
	}
	return price, nil
}

// CheckRate verifies that TargetQuantity is within tolerance (a fraction,
// e.g. 0.005) of SourceQuantity * ExchangeRate.
func CheckRate(req ExchangeRequest, tolerance decimal.Decimal) error {
	if !req.TargetQuantity.IsPositive() {
		return fmt.Errorf("ledger: target quantity must be positive: %w", domain.ErrInvalidEntry)
	}
	expected := req.SourceQuantity.Mul(req.ExchangeRate)
	drift := expected.Sub(req.TargetQuantity).Abs().Div(req.TargetQuantity)
	if drift.GreaterThan(tolerance) {
		return fmt.Errorf("ledger: target quantity %s does not match %s x %s: %w",
			req.TargetQuantity, req.SourceQuantity, req.ExchangeRate, domain.ErrInvalidEntry)
	}
	return nil
}

func checkEnds(source, target string) error {
	if source == "" || target == "" {
		return fmt.Errorf("ledger: source and target positions are required: %w", domain.ErrInvalidEntry)
	}
	if source == target {
		return fmt.Errorf("ledger: source and target position are both %s: %w", source, domain.ErrInvalidEntry)
	}
	return nil
}

func link(source, target domain.LedgerEntry) Pair {
	sourceID, targetID := source.ID, target.ID
	source.LinkedEntryID = &targetID
	target.LinkedEntryID = &sourceID
	return Pair{Source: source, Target: target}
}
