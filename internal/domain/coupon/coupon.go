package coupon

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent takes a percentage of the line price.
	DiscountPercent DiscountType = "PERCENT"
	// DiscountFixed takes a fixed amount off the line price.
	DiscountFixed DiscountType = "FIXED"
)

// fixedThreshold separates fixed amounts from percentages for coupons that
// predate the explicit discount type.
var fixedThreshold = decimal.NewFromInt(100)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

// InferDiscountType derives the discount type of an untyped coupon from the
// magnitude of its value: anything above 100 is a fixed amount.
func InferDiscountType(value string) (DiscountType, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return "", &MalformedError{Field: "discount_value", Value: value}
	}
	if v.GreaterThan(fixedThreshold) {
		return DiscountFixed, nil
	}
	return DiscountPercent, nil
}

var (
	ErrNotFound           = apperr.New(apperr.KindNotFound, "coupon_not_found", "coupon not found")
	ErrUserCouponNotFound = apperr.New(apperr.KindNotFound, "user_coupon_not_found", "user coupon not found")
	ErrForbidden          = apperr.New(apperr.KindForbidden, "coupon_forbidden", "coupon belongs to another consumer")
	ErrAlreadyUsed        = apperr.New(apperr.KindConflict, "coupon_already_used", "coupon already used")
	ErrInactive           = apperr.New(apperr.KindConflict, "coupon_inactive", "coupon is not active")
	ErrBelowMinimum       = apperr.New(apperr.KindInvalidInput, "coupon_below_minimum", "order amount below coupon minimum")
	ErrCategoryMismatch   = apperr.New(apperr.KindConflict, "coupon_category_mismatch", "coupon does not apply to product category")
	ErrMalformed          = apperr.New(apperr.KindInvalidInput, "coupon_malformed", "coupon has malformed numeric terms")
	ErrDuplicateCode      = apperr.New(apperr.KindConflict, "coupon_duplicate_code", "coupon code already registered")
	ErrNotApplied         = apperr.New(apperr.KindConflict, "coupon_not_applied", "coupon is not applied")
)

// MalformedError reports an unparsable numeric coupon term.
type MalformedError struct {
	Field string
	Value string
}

func (e *MalformedError) Error() string {
	return "coupon " + e.Field + " is not a number: " + e.Value
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Coupon is a global discount definition. Only IsActive changes after
// registration.
type Coupon struct {
	ID             int64
	Code           string
	Name           string
	DiscountType   DiscountType
	DiscountValue  string
	MinOrderAmount string
	IsActive       bool
	CategoryIDs    []int64
}

// Type returns the explicit discount type, falling back to magnitude
// inference for legacy coupons without one.
func (c *Coupon) Type() (DiscountType, error) {
	if c.DiscountType.Valid() {
		return c.DiscountType, nil
	}
	return InferDiscountType(c.DiscountValue)
}

// AppliesToCategory reports whether the coupon is mapped to categoryID.
// There is no wildcard: a coupon without categories applies to nothing.
func (c *Coupon) AppliesToCategory(categoryID int64) bool {
	return slices.Contains(c.CategoryIDs, categoryID)
}

// UserCoupon is a coupon issued to one consumer. Applied means reserved on a
// cart line; used means consumed by an order.
type UserCoupon struct {
	ID         int64
	ConsumerID int64
	CouponID   int64
	IsUsed     bool
	IsApplied  bool
	OrderID    int64

	// Coupon is the loaded definition, populated by repository reads.
	Coupon *Coupon
}

// Apply reserves the coupon on a cart line.
func (uc *UserCoupon) Apply() error {
	if uc.IsUsed {
		return ErrAlreadyUsed
	}
	uc.IsApplied = true
	return nil
}

// Release drops the cart line reservation.
func (uc *UserCoupon) Release() {
	uc.IsApplied = false
}

// Use consumes the coupon for orderID.
func (uc *UserCoupon) Use(orderID int64) error {
	if uc.IsUsed {
		return ErrAlreadyUsed
	}
	uc.IsUsed = true
	uc.IsApplied = false
	uc.OrderID = orderID
	return nil
}

// Rollback returns a used coupon to the consumer's usable pool.
func (uc *UserCoupon) Rollback() {
	uc.IsUsed = false
	uc.IsApplied = false
	uc.OrderID = 0
}

// Repository provides coupon definitions and issued user coupons.
//
// Reads made with a transactional context lock the returned user coupon rows
// until the transaction ends.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	ListActive(ctx context.Context) ([]Coupon, error)
	ExistsCode(ctx context.Context, code string) (bool, error)

	GetUserCoupon(ctx context.Context, id int64) (*UserCoupon, error)
	ListUserCoupons(ctx context.Context, consumerID int64) ([]UserCoupon, error)
	SaveUserCoupon(ctx context.Context, uc *UserCoupon) error
	// IssueToConsumer issues each coupon to the consumer, skipping coupons
	// already issued. It returns the number of new user coupons.
	IssueToConsumer(ctx context.Context, consumerID int64, couponIDs []int64) (int, error)
	// IssueToAll issues the coupon to every consumer that does not hold it.
	IssueToAll(ctx context.Context, couponID int64) (int, error)
}
