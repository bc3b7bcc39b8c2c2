package basket

import (
	"github.com/shopspring/decimal"

	"github.com/warungtech/pos-register/internal/domain/customer"
)

// Loyalty conversion constants. Redemption is offered in multiples of
// RedeemStep currency-equivalent points; one point accrues per EarnDivisor
// currency units of final payment.
const (
	RedeemStep  = 1000
	EarnDivisor = 100
)

var (
	redeemStepDec  = decimal.NewFromInt(RedeemStep)
	earnDivisorDec = decimal.NewFromInt(EarnDivisor)
)

// Totals is the derived monetary summary of a basket. No field is ever
// negative.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountTotal      decimal.Decimal `json:"discount_total"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
	// LoyaltyEligible is the redeemable ceiling given the bound customer and
	// the payable amount, always a multiple of RedeemStep.
	LoyaltyEligible int64 `json:"loyalty_eligible"`
	// AppliedLoyalty is the redemption actually applied: at most the
	// requested amount and at most LoyaltyEligible.
	AppliedLoyalty int64           `json:"applied_loyalty"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	PointsEarned   int64           `json:"points_earned"`
}

// ComputeTotals derives the totals summary from the basket lines, the bound
// customer (nil when none), and the requested points redemption. It is pure:
// identical input always yields identical output.
func ComputeTotals(lines []Line, cust *customer.Customer, requestedRedeem int64) Totals {
	subtotal := decimal.Zero
	discountTotal := decimal.Zero
	for _, ln := range lines {
		gross := ln.Lot.UnitPrice.Mul(ln.Quantity)
		subtotal = subtotal.Add(gross)
		discountTotal = discountTotal.Add(gross.Mul(ln.Lot.Discount))
	}

	afterDiscount := subtotal.Sub(discountTotal)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}

	eligible := loyaltyEligible(cust, afterDiscount)

	if requestedRedeem < 0 {
		requestedRedeem = 0
	}
	applied := requestedRedeem
	if applied > eligible {
		applied = eligible
	}

	final := afterDiscount.Sub(decimal.NewFromInt(applied))
	if final.IsNegative() {
		final = decimal.Zero
	}

	return Totals{
		Subtotal:           subtotal,
		DiscountTotal:      discountTotal,
		TotalAfterDiscount: afterDiscount,
		LoyaltyEligible:    eligible,
		AppliedLoyalty:     applied,
		FinalTotal:         final,
		PointsEarned:       final.Div(earnDivisorDec).Floor().IntPart(),
	}
}

// loyaltyEligible returns the redemption ceiling: the lesser of the
// customer's balance and the payable amount, each floored to a multiple of
// RedeemStep. Zero when no customer is bound or nothing is payable.
func loyaltyEligible(cust *customer.Customer, afterDiscount decimal.Decimal) int64 {
	if cust == nil || !afterDiscount.IsPositive() {
		return 0
	}
	balanceCap := cust.Points / RedeemStep * RedeemStep
	payableCap := afterDiscount.Div(redeemStepDec).Floor().IntPart() * RedeemStep
	if balanceCap < payableCap {
		return balanceCap
	}
	return payableCap
}

// ClampRedeem restores the re-clamp invariant after a mutation: the requested
// redemption never exceeds the current eligibility and is forced to zero when
// no customer is bound. The adjustment is monotonically non-increasing.
func ClampRedeem(requested int64, lines []Line, cust *customer.Customer) int64 {
	if cust == nil || requested <= 0 {
		return 0
	}
	eligible := ComputeTotals(lines, cust, 0).LoyaltyEligible
	if requested > eligible {
		return eligible
	}
	return requested
}
