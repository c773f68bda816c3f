package domain

import "time"

// AssetKind classifies an asset.
type AssetKind string

const (
	AssetKindStock    AssetKind = "stock"
	AssetKindETF      AssetKind = "etf"
	AssetKindCrypto   AssetKind = "crypto"
	AssetKindFund     AssetKind = "fund"
	AssetKindCurrency AssetKind = "currency"
)

// Asset is a tradable instrument or a fiat currency.
type Asset struct {
	ID        string
	Symbol    string
	Name      string
	Kind      AssetKind
	CreatedAt time.Time
}

// IsCurrency reports whether the asset is fiat currency. Currency positions
// are valued at a fixed unit price of 1.
func (a Asset) IsCurrency() bool {
	return a.Kind == AssetKindCurrency
}
