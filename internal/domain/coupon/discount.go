package coupon

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the discount c grants on price.
//
// Percent coupons take value/100 rounded half-up to four places, multiply by
// price and truncate to whole currency units. Fixed coupons take the value as
// is. The result is clamped to [0, price]. A *MalformedError is returned when
// the discount value does not parse.
func Discount(price decimal.Decimal, c *Coupon) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(c.DiscountValue)
	if err != nil {
		return decimal.Zero, &MalformedError{Field: "discount_value", Value: c.DiscountValue}
	}
	typ, err := c.Type()
	if err != nil {
		return decimal.Zero, err
	}

	var amount decimal.Decimal
	switch typ {
	case DiscountFixed:
		amount = value
	default:
		rate := value.DivRound(hundred, 4)
		amount = price.Mul(rate).Truncate(0)
	}

	return clamp(amount, price), nil
}

// ComputeDiscount is Discount for read paths: a malformed coupon is logged and
// yields no discount.
func ComputeDiscount(ctx context.Context, price decimal.Decimal, c *Coupon) decimal.Decimal {
	amount, err := Discount(price, c)
	if err != nil {
		zctx.From(ctx).Warn("Ignoring malformed coupon",
			zap.Int64("coupon_id", c.ID),
			zap.String("code", c.Code),
			zap.Error(err),
		)
		return decimal.Zero
	}
	return amount
}

func clamp(amount, price decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(price) {
		return price
	}
	return amount
}
