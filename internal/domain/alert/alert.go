// Package alert merges user-dismissible manual alerts with derived risk
// alerts recomputed from the current basket state.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warungtech/pos-register/internal/domain/basket"
)

// Severity classifies an alert for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Origin distinguishes how an alert came to exist.
type Origin string

const (
	// OriginManual alerts are raised by discrete user actions and persist
	// until explicitly dismissed.
	OriginManual Origin = "manual"
	// OriginDerived alerts are recomputed wholesale from basket state.
	OriginDerived Origin = "derived"
)

// Derived alert reason tags. A derived alert's id is "<lineID>:<reason>",
// which makes recomputation a clean replace-by-key.
const (
	reasonStock      = "stock"
	reasonExpiry     = "expiry"
	reasonMargin     = "margin"
	reasonMarginData = "margin-data"
)

// Alert is a single display message.
type Alert struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
	Origin   Origin   `json:"origin"`
}

// Engine owns the two alert collections. It is not safe for concurrent use;
// the register session serializes access to it.
type Engine struct {
	manual  []Alert
	derived []Alert
	now     func() time.Time
}

// NewEngineWithClock returns an empty alert engine whose expiry checks read
// the given clock. Pass time.Now outside of tests.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Raise appends a manual alert with a fresh id and returns it.
func (e *Engine) Raise(sev Severity, text string) Alert {
	a := Alert{
		ID:       uuid.New().String(),
		Text:     text,
		Severity: sev,
		Origin:   OriginManual,
	}
	e.manual = append(e.manual, a)
	return a
}

// Dismiss removes the manual alert with the given id. It reports whether an
// alert was removed. Derived alerts cannot be dismissed; they disappear when
// the underlying condition clears.
func (e *Engine) Dismiss(id string) bool {
	for i, a := range e.manual {
		if a.ID == id {
			e.manual = append(e.manual[:i], e.manual[i+1:]...)
			return true
		}
	}
	return false
}

// ClearManual drops all manual alerts.
func (e *Engine) ClearManual() {
	e.manual = nil
}

// Recompute replaces the derived alert set from scratch: one pass per line,
// each check independent. Call it after every basket change.
func (e *Engine) Recompute(lines []basket.Line) {
	derived := make([]Alert, 0, len(lines))
	for _, ln := range lines {
		derived = append(derived, e.checkLine(ln)...)
	}
	e.derived = derived
}

// List returns the display list: manual alerts followed by derived alerts,
// deduplicated by id with the derived entry winning.
func (e *Engine) List() []Alert {
	derivedIDs := make(map[string]struct{}, len(e.derived))
	for _, a := range e.derived {
		derivedIDs[a.ID] = struct{}{}
	}

	out := make([]Alert, 0, len(e.manual)+len(e.derived))
	for _, a := range e.manual {
		if _, shadowed := derivedIDs[a.ID]; shadowed {
			continue
		}
		out = append(out, a)
	}
	return append(out, e.derived...)
}

func (e *Engine) checkLine(ln basket.Line) []Alert {
	var out []Alert

	if a, ok := checkStock(ln); ok {
		out = append(out, a)
	}
	if a, ok := e.checkExpiry(ln); ok {
		out = append(out, a)
	}
	if a, ok := checkPricing(ln); ok {
		out = append(out, a)
	}
	return out
}

// checkStock warns when selling the line would leave on-hand stock below the
// suggested reorder quantity.
func checkStock(ln basket.Line) (Alert, bool) {
	suggested := ln.Lot.ReorderQty
	if suggested == nil {
		return Alert{}, false
	}
	remaining := ln.Lot.QtyOnHand.Sub(ln.Quantity)
	if !remaining.LessThan(*suggested) {
		return Alert{}, false
	}
	return Alert{
		ID: ln.ID + ":" + reasonStock,
		Text: fmt.Sprintf("%s: stock after sale (%s %s) falls below the suggested reorder quantity (%s)",
			ln.Lot.SKU, remaining, ln.Lot.UnitOfMeasure, suggested),
		Severity: SeverityWarning,
		Origin:   OriginDerived,
	}, true
}

// checkExpiry warns when the lot expires within the next three days. The day
// count is the ceiling of the time difference.
func (e *Engine) checkExpiry(ln basket.Line) (Alert, bool) {
	if ln.Lot.ExpiresAt == nil {
		return Alert{}, false
	}
	days := daysUntil(e.now(), *ln.Lot.ExpiresAt)
	if days < 0 || days > 3 {
		return Alert{}, false
	}
	return Alert{
		ID:       ln.ID + ":" + reasonExpiry,
		Text:     fmt.Sprintf("%s: lot %s expires in %d day(s)", ln.Lot.SKU, ln.Lot.LotCode, days),
		Severity: SeverityWarning,
		Origin:   OriginDerived,
	}, true
}

// checkPricing flags missing cost data, or warns when the line's margin falls
// below its category's minimum threshold.
func checkPricing(ln basket.Line) (Alert, bool) {
	if ln.Lot.MissingCost {
		return Alert{
			ID:       ln.ID + ":" + reasonMarginData,
			Text:     fmt.Sprintf("%s: cost and margin data missing, margin not checked", ln.Lot.SKU),
			Severity: SeverityInfo,
			Origin:   OriginDerived,
		}, true
	}

	if !ln.Lot.UnitCost.IsPositive() {
		return Alert{}, false
	}
	margin := ln.Lot.UnitPrice.Sub(ln.Lot.UnitCost).Div(ln.Lot.UnitCost)

	threshold := normalizeThreshold(ln.Lot.MinMargin)
	if !threshold.IsPositive() || !margin.LessThan(threshold) {
		return Alert{}, false
	}
	return Alert{
		ID: ln.ID + ":" + reasonMargin,
		Text: fmt.Sprintf("%s: margin %s%% is below the category minimum %s%%",
			ln.Lot.SKU, margin.Mul(hundred).Round(1), threshold.Mul(hundred).Round(1)),
		Severity: SeverityWarning,
		Origin:   OriginDerived,
	}, true
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// normalizeThreshold treats values above 1 as whole percents.
func normalizeThreshold(t decimal.Decimal) decimal.Decimal {
	if t.GreaterThan(one) {
		return t.Div(hundred)
	}
	return t
}

// daysUntil returns the ceiling of the day difference between now and the
// given time. Negative when the time is more than a day in the past. Go's
// integer division truncates toward zero, which already is the ceiling for
// negative durations.
func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
