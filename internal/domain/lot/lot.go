// Package lot defines sellable inventory lots and the unit-of-measure rules
// that govern quantity granularity.
package lot

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WeightUnit is the unit-of-measure code for weight-based lots. Quantities in
// this unit are kept to three decimal places; all other units are counted in
// whole pieces.
const WeightUnit = "KG"

// Lot is a read-only snapshot of a sellable receipt batch as returned by the
// platform's lot search. Price, discount, and margin figures are computed
// server-side; this core only consumes them.
type Lot struct {
	ProductID     string           `json:"product_id"`
	LotID         string           `json:"lot_id"`
	SKU           string           `json:"sku"`
	LotCode       string           `json:"lot_code"`
	UnitOfMeasure string           `json:"uom"`
	QtyOnHand     decimal.Decimal  `json:"qty_on_hand"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	UnitCost      decimal.Decimal  `json:"unit_cost"`
	Discount      decimal.Decimal  `json:"discount"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	Supplier      string           `json:"supplier,omitempty"`
	CategoryID    string           `json:"category_id"`
	ReorderQty    *decimal.Decimal `json:"reorder_qty,omitempty"`
	MinMargin     decimal.Decimal  `json:"min_margin"`
	MissingCost   bool             `json:"missing_cost"`
}

// Key identifies a lot within a basket. At most one basket line exists per key.
func (l Lot) Key() string {
	return l.ProductID + ":" + l.LotID
}

// IsWeightUnit reports whether the unit-of-measure code denotes a weight unit.
// The comparison is case-insensitive.
func IsWeightUnit(uom string) bool {
	return strings.EqualFold(uom, WeightUnit)
}

// NormalizeQuantity rounds a raw quantity to the precision allowed by the
// unit of measure: three decimal places for weight units, whole numbers
// otherwise. It must be applied at every point a quantity is written.
func NormalizeQuantity(qty decimal.Decimal, uom string) decimal.Decimal {
	if IsWeightUnit(uom) {
		return qty.Round(3)
	}
	return qty.Round(0)
}

// AddStep returns the quantity increment applied when a lot already present
// in the basket is added again.
func AddStep(uom string) decimal.Decimal {
	if IsWeightUnit(uom) {
		return decimal.NewFromFloat(0.1)
	}
	return decimal.NewFromInt(1)
}

// InitialQuantity returns the starting quantity for a newly created basket
// line: one add step, so every add of a lot contributes the same increment
// whether it creates the line or merges into it.
func InitialQuantity(uom string) decimal.Decimal {
	return AddStep(uom)
}
