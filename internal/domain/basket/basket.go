// Package basket implements the order-line store and the totals calculator
// for the register session.
package basket

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warungtech/pos-register/internal/domain/lot"
)

// ErrLineNotFound is returned when a line identifier does not exist in the basket.
var ErrLineNotFound = errors.New("basket line not found")

// Line is a mutable order line: a lot snapshot plus the quantity being sold.
// Invariant: 0 <= Quantity <= Lot.QtyOnHand, normalized per the lot's unit.
type Line struct {
	ID       string          `json:"id"`
	Lot      lot.Lot         `json:"lot"`
	Quantity decimal.Decimal `json:"quantity"`
}

// AddResult describes the outcome of adding a lot to the basket.
type AddResult struct {
	// Line is the affected line (created or merged into).
	Line *Line
	// Merged is true when the lot already had a line and its quantity was stepped.
	Merged bool
	// AtCapacity is true when the merge step was fully clamped away: the line
	// already held the entire on-hand quantity and no mutation occurred.
	AtCapacity bool
}

// SetQuantityResult describes the outcome of a manual quantity edit.
type SetQuantityResult struct {
	// Line is the edited line.
	Line *Line
	// Clamped is true when the requested value exceeded the on-hand quantity
	// and was reduced to it.
	Clamped bool
}

// Basket owns the ordered collection of lines. Insertion order is preserved
// for display; at most one line exists per (product, lot) pair.
//
// Basket is not safe for concurrent use; the register session serializes
// access to it.
type Basket struct {
	lines []*Line
	index map[string]*Line
}

// New returns an empty basket.
func New() *Basket {
	return &Basket{index: make(map[string]*Line)}
}

// Add inserts a new line for the lot or merges into the existing one.
//
// Every add contributes one step of the lot's unit: a new line starts at a
// single step and an existing line is incremented by one, both clamped to
// the on-hand quantity. When the clamp removes the whole merge step the
// basket is left untouched and the result reports AtCapacity.
func (b *Basket) Add(l lot.Lot) AddResult {
	if ln, ok := b.index[l.Key()]; ok {
		next := lot.NormalizeQuantity(ln.Quantity.Add(lot.AddStep(l.UnitOfMeasure)), l.UnitOfMeasure)
		if next.GreaterThan(l.QtyOnHand) {
			next = lot.NormalizeQuantity(l.QtyOnHand, l.UnitOfMeasure)
		}
		if next.Equal(ln.Quantity) {
			return AddResult{Line: ln, Merged: true, AtCapacity: true}
		}
		ln.Quantity = next
		return AddResult{Line: ln, Merged: true}
	}

	qty := lot.NormalizeQuantity(lot.InitialQuantity(l.UnitOfMeasure), l.UnitOfMeasure)
	if qty.GreaterThan(l.QtyOnHand) {
		qty = lot.NormalizeQuantity(l.QtyOnHand, l.UnitOfMeasure)
	}
	ln := &Line{
		ID:       uuid.New().String(),
		Lot:      l,
		Quantity: qty,
	}
	b.lines = append(b.lines, ln)
	b.index[l.Key()] = ln
	return AddResult{Line: ln}
}

// SetQuantity stores a manually entered quantity on the given line. Negative
// input clamps to zero; input above the on-hand quantity clamps down and the
// result reports Clamped. The stored value is always normalized.
func (b *Basket) SetQuantity(lineID string, raw decimal.Decimal) (SetQuantityResult, error) {
	ln, err := b.line(lineID)
	if err != nil {
		return SetQuantityResult{}, err
	}

	clamped := false
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	if raw.GreaterThan(ln.Lot.QtyOnHand) {
		raw = ln.Lot.QtyOnHand
		clamped = true
	}
	ln.Quantity = lot.NormalizeQuantity(raw, ln.Lot.UnitOfMeasure)
	return SetQuantityResult{Line: ln, Clamped: clamped}, nil
}

// Remove deletes the line unconditionally.
func (b *Basket) Remove(lineID string) error {
	ln, err := b.line(lineID)
	if err != nil {
		return err
	}
	delete(b.index, ln.Lot.Key())
	for i, cur := range b.lines {
		if cur.ID == lineID {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all lines.
func (b *Basket) Clear() {
	b.lines = nil
	b.index = make(map[string]*Line)
}

// Len returns the number of lines.
func (b *Basket) Len() int {
	return len(b.lines)
}

// Lines returns a snapshot of the lines in insertion order.
func (b *Basket) Lines() []Line {
	out := make([]Line, len(b.lines))
	for i, ln := range b.lines {
		out[i] = *ln
	}
	return out
}

func (b *Basket) line(lineID string) (*Line, error) {
	for _, ln := range b.lines {
		if ln.ID == lineID {
			return ln, nil
		}
	}
	return nil, errors.Wrapf(ErrLineNotFound, "line %s", lineID)
}
