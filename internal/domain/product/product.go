package product

import (
	"github.com/shopspring/decimal"
)

// Product holds the denormalized catalog attributes a cart line carries for
// display. The portal does not reliably echo these fields back on cart
// mutations, so the engine preserves them across server merges.
type Product struct {
	Code     string
	Name     string
	Category string
	UnitSize string
	UnitType string
	Price    decimal.Decimal
}
