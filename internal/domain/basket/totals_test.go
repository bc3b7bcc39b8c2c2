package basket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/domain/lot"
)

func priceLine(price, qty, discount string) Line {
	return Line{
		ID: "ln",
		Lot: lot.Lot{
			ProductID:     "p",
			LotID:         "l",
			UnitOfMeasure: "PCS",
			QtyOnHand:     dec("100"),
			UnitPrice:     dec(price),
			Discount:      dec(discount),
		},
		Quantity: dec(qty),
	}
}

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, nil, 0)

	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.FinalTotal.IsZero())
	assert.Zero(t, got.LoyaltyEligible)
	assert.Zero(t, got.PointsEarned)
}

func TestComputeTotals_SubtotalAndDiscount(t *testing.T) {
	lines := []Line{
		priceLine("10000", "2", "0.1"),
		priceLine("5000", "1", "0"),
	}

	got := ComputeTotals(lines, nil, 0)

	assert.True(t, dec("25000").Equal(got.Subtotal))
	assert.True(t, dec("2000").Equal(got.DiscountTotal))
	assert.True(t, dec("23000").Equal(got.TotalAfterDiscount))
	assert.True(t, dec("23000").Equal(got.FinalTotal))
	assert.EqualValues(t, 230, got.PointsEarned)
}

func TestComputeTotals_LoyaltyEligibility(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 3500}
	lines := []Line{priceLine("12000", "1", "0")}

	got := ComputeTotals(lines, cust, 0)

	// floor(3500/1000)*1000 = 3000, floor(12000/1000)*1000 = 12000, min = 3000.
	assert.EqualValues(t, 3000, got.LoyaltyEligible)
	assert.Zero(t, got.AppliedLoyalty)
}

func TestComputeTotals_EligibilityCappedByPayable(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 50000}
	lines := []Line{priceLine("2500", "1", "0")}

	got := ComputeTotals(lines, cust, 0)

	assert.EqualValues(t, 2000, got.LoyaltyEligible)
}

func TestComputeTotals_AppliedNeverExceedsEligible(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 3500}
	lines := []Line{priceLine("12000", "1", "0")}

	got := ComputeTotals(lines, cust, 99000)

	assert.EqualValues(t, 3000, got.AppliedLoyalty)
	assert.True(t, dec("9000").Equal(got.FinalTotal))
	assert.EqualValues(t, 90, got.PointsEarned)
}

func TestComputeTotals_NoCustomerForcesZero(t *testing.T) {
	lines := []Line{priceLine("12000", "1", "0")}

	got := ComputeTotals(lines, nil, 5000)

	assert.Zero(t, got.LoyaltyEligible)
	assert.Zero(t, got.AppliedLoyalty)
	assert.True(t, dec("12000").Equal(got.FinalTotal))
}

func TestComputeTotals_NegativeRequestTreatedAsZero(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 5000}
	lines := []Line{priceLine("12000", "1", "0")}

	got := ComputeTotals(lines, cust, -100)

	assert.Zero(t, got.AppliedLoyalty)
}

func TestComputeTotals_EligibleAlwaysMultipleOfStep(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 2999}
	lines := []Line{priceLine("1999", "1", "0")}

	got := ComputeTotals(lines, cust, 0)

	assert.EqualValues(t, 1000, got.LoyaltyEligible)
	assert.Zero(t, got.LoyaltyEligible%RedeemStep)
}

func TestComputeTotals_Idempotent(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 3500}
	lines := []Line{priceLine("12000", "3", "0.05")}

	a := ComputeTotals(lines, cust, 2000)
	b := ComputeTotals(lines, cust, 2000)

	assert.Equal(t, a, b)
}

func TestComputeTotals_FinalNeverNegative(t *testing.T) {
	// Discount fraction above 1 would push the payable amount negative.
	lines := []Line{priceLine("1000", "1", "1.5")}

	got := ComputeTotals(lines, nil, 0)

	assert.True(t, got.TotalAfterDiscount.IsZero())
	assert.True(t, got.FinalTotal.IsZero())
}

func TestClampRedeem(t *testing.T) {
	cust := &customer.Customer{ID: "c1", Points: 3500}
	lines := []Line{priceLine("12000", "1", "0")}

	assert.EqualValues(t, 2000, ClampRedeem(2000, lines, cust))
	assert.EqualValues(t, 3000, ClampRedeem(9000, lines, cust))
	assert.Zero(t, ClampRedeem(2000, lines, nil))
	assert.Zero(t, ClampRedeem(-5, lines, cust))

	// Shrinking the basket shrinks the ceiling.
	small := []Line{priceLine("1500", "1", "0")}
	assert.EqualValues(t, 1000, ClampRedeem(3000, small, cust))
}

func TestComputeTotals_WeighedLine(t *testing.T) {
	ln := Line{
		Lot: lot.Lot{
			UnitOfMeasure: "KG",
			QtyOnHand:     dec("5"),
			UnitPrice:     dec("20000"),
		},
		Quantity: dec("0.2"),
	}

	got := ComputeTotals([]Line{ln}, nil, 0)

	assert.True(t, dec("4000").Equal(got.Subtotal))
}
