package alert

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warungtech/pos-register/internal/domain/basket"
	"github.com/warungtech/pos-register/internal/domain/lot"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngineWithClock(func() time.Time { return fixedNow })
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(id string, mutate func(*lot.Lot)) basket.Line {
	l := lot.Lot{
		ProductID:     "p1",
		LotID:         "l1",
		SKU:           "SKU-1",
		LotCode:       "LOT-A",
		UnitOfMeasure: "PCS",
		QtyOnHand:     dec("100"),
		UnitPrice:     dec("12000"),
		UnitCost:      dec("10000"),
	}
	if mutate != nil {
		mutate(&l)
	}
	return basket.Line{ID: id, Lot: l, Quantity: dec("1")}
}

func TestManualAlerts(t *testing.T) {
	e := newTestEngine()

	a := e.Raise(SeverityError, "lookup failed")
	b := e.Raise(SeverityInfo, "no customer found")

	require.Len(t, e.List(), 2)
	assert.NotEqual(t, a.ID, b.ID)

	assert.True(t, e.Dismiss(a.ID))
	assert.False(t, e.Dismiss(a.ID))
	require.Len(t, e.List(), 1)
	assert.Equal(t, b.ID, e.List()[0].ID)

	e.ClearManual()
	assert.Empty(t, e.List())
}

func TestRecompute_StockRisk(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", func(l *lot.Lot) {
		r := dec("100")
		l.ReorderQty = &r
	})

	e.Recompute([]basket.Line{ln})

	got := e.List()
	require.Len(t, got, 1)
	assert.Equal(t, "ln1:stock", got[0].ID)
	assert.Equal(t, SeverityWarning, got[0].Severity)
	assert.Equal(t, OriginDerived, got[0].Origin)
}

func TestRecompute_NoStockRiskWithoutSuggestion(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", nil)

	e.Recompute([]basket.Line{ln})

	assert.Empty(t, e.List())
}

func TestRecompute_ExpiryRisk(t *testing.T) {
	tests := []struct {
		name     string
		expires  time.Time
		wantDays string
		want     bool
	}{
		{name: "expires in 2.5 days rounds up to 3", expires: fixedNow.Add(60 * time.Hour), wantDays: "3 day(s)", want: true},
		{name: "expires today", expires: fixedNow, wantDays: "0 day(s)", want: true},
		{name: "expires in exactly 3 days", expires: fixedNow.Add(72 * time.Hour), wantDays: "3 day(s)", want: true},
		{name: "expires in just over 3 days", expires: fixedNow.Add(73 * time.Hour), want: false},
		{name: "already expired", expires: fixedNow.Add(-30 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			ln := line("ln1", func(l *lot.Lot) {
				exp := tt.expires
				l.ExpiresAt = &exp
			})

			e.Recompute([]basket.Line{ln})

			got := e.List()
			if !tt.want {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "ln1:expiry", got[0].ID)
			assert.Contains(t, got[0].Text, tt.wantDays)
		})
	}
}

func TestRecompute_MissingCostData(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", func(l *lot.Lot) {
		l.MissingCost = true
	})

	e.Recompute([]basket.Line{ln})

	got := e.List()
	require.Len(t, got, 1)
	assert.Equal(t, "ln1:margin-data", got[0].ID)
	assert.Equal(t, SeverityInfo, got[0].Severity)
}

func TestRecompute_MarginBelowThreshold(t *testing.T) {
	e := newTestEngine()
	// Margin (12000-10000)/10000 = 20%, threshold 25%.
	ln := line("ln1", func(l *lot.Lot) {
		l.MinMargin = dec("0.25")
	})

	e.Recompute([]basket.Line{ln})

	got := e.List()
	require.Len(t, got, 1)
	assert.Equal(t, "ln1:margin", got[0].ID)
	assert.Contains(t, got[0].Text, "20%")
}

func TestRecompute_WholePercentThresholdNormalized(t *testing.T) {
	e := newTestEngine()
	// 25 is treated as 25%, not 2500%.
	ln := line("ln1", func(l *lot.Lot) {
		l.MinMargin = dec("25")
	})

	e.Recompute([]basket.Line{ln})

	require.Len(t, e.List(), 1)
}

func TestRecompute_MarginAboveThresholdSilent(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", func(l *lot.Lot) {
		l.MinMargin = dec("0.1")
	})

	e.Recompute([]basket.Line{ln})

	assert.Empty(t, e.List())
}

func TestRecompute_ZeroCostSkipsMarginCheck(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", func(l *lot.Lot) {
		l.UnitCost = decimal.Zero
		l.MinMargin = dec("0.25")
	})

	e.Recompute([]basket.Line{ln})

	assert.Empty(t, e.List())
}

func TestRecompute_ReplacesWholesale(t *testing.T) {
	e := newTestEngine()
	risky := line("ln1", func(l *lot.Lot) {
		r := dec("100")
		l.ReorderQty = &r
	})

	e.Recompute([]basket.Line{risky})
	require.Len(t, e.List(), 1)

	// Condition cleared: the derived alert disappears without any dismissal.
	e.Recompute([]basket.Line{line("ln1", nil)})
	assert.Empty(t, e.List())
}

func TestList_ManualSurvivesRecompute(t *testing.T) {
	e := newTestEngine()
	e.Raise(SeverityError, "finalize failed")

	e.Recompute(nil)
	e.Recompute(nil)

	require.Len(t, e.List(), 1)
	assert.Equal(t, OriginManual, e.List()[0].Origin)
}

func TestRecompute_MultipleChecksPerLine(t *testing.T) {
	e := newTestEngine()
	ln := line("ln1", func(l *lot.Lot) {
		r := dec("100")
		exp := fixedNow.Add(24 * time.Hour)
		l.ReorderQty = &r
		l.ExpiresAt = &exp
		l.MinMargin = dec("0.25")
	})

	e.Recompute([]basket.Line{ln})

	got := e.List()
	require.Len(t, got, 3)
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.ElementsMatch(t, []string{"ln1:stock", "ln1:expiry", "ln1:margin"}, ids)
}
