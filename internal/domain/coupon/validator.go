package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BelowMinimumError reports a line whose price does not reach the coupon's
// minimum order amount.
type BelowMinimumError struct {
	ProductName string
	LinePrice   decimal.Decimal
	Minimum     decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("%s: line price %s is below coupon minimum %s",
		e.ProductName, e.LinePrice.String(), e.Minimum.String())
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }

// Minimum parses the coupon's minimum order amount.
func (c *Coupon) Minimum() (decimal.Decimal, error) {
	if c.MinOrderAmount == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(c.MinOrderAmount)
	if err != nil {
		return decimal.Zero, &MalformedError{Field: "min_order_amount", Value: c.MinOrderAmount}
	}
	return v, nil
}

// CheckEligibility verifies that uc may discount a line worth linePrice for
// consumerID. Checks run in order and stop at the first failure: ownership,
// usage, activation, minimum order amount. uc.Coupon must be loaded.
func CheckEligibility(uc *UserCoupon, consumerID int64, linePrice decimal.Decimal, productName string) error {
	if uc.ConsumerID != consumerID {
		return ErrForbidden
	}
	if uc.IsUsed {
		return ErrAlreadyUsed
	}
	c := uc.Coupon
	if c == nil || !c.IsActive {
		return ErrInactive
	}
	minimum, err := c.Minimum()
	if err != nil {
		return err
	}
	if linePrice.LessThan(minimum) {
		return &BelowMinimumError{ProductName: productName, LinePrice: linePrice, Minimum: minimum}
	}
	return nil
}
