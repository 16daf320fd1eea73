package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/apperr"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
)

var (
	ErrNotFound        = apperr.New(apperr.KindNotFound, "cart_not_found", "cart not found")
	ErrItemNotFound    = apperr.New(apperr.KindNotFound, "cart_item_not_found", "cart item not found")
	ErrForbidden       = apperr.New(apperr.KindForbidden, "cart_item_forbidden", "cart item belongs to another consumer")
	ErrInvalidQuantity = apperr.New(apperr.KindInvalidInput, "invalid_quantity", "quantity must be at least 1")
)

// Cart is a consumer's shopping cart. There is at most one per consumer.
type Cart struct {
	ID         int64
	ConsumerID int64
	Items      []Item
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Item is one product line of a cart. UserCouponID is zero when no coupon is
// applied to the line.
type Item struct {
	ID           int64
	CartID       int64
	ProductID    int64
	Quantity     int
	UserCouponID int64

	// Product is the loaded catalog entry, populated by repository reads.
	Product *product.Product
}

// LinePrice is unit price times quantity. Product must be loaded.
func (i *Item) LinePrice() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository persists carts and their lines. Reads return lines with their
// product loaded. Reads made with a transactional context lock the returned
// rows until the transaction ends.
type Repository interface {
	// GetByConsumer returns the consumer's cart or ErrNotFound.
	GetByConsumer(ctx context.Context, consumerID int64) (*Cart, error)
	Create(ctx context.Context, c *Cart) error

	GetItem(ctx context.Context, itemID int64) (*Item, error)
	FindItem(ctx context.Context, cartID, productID int64) (*Item, error)
	FindItemByUserCoupon(ctx context.Context, userCouponID int64) (*Item, error)
	// SaveItem inserts the line when ID is zero and updates it otherwise.
	SaveItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, itemID int64) error
	ClearItems(ctx context.Context, cartID int64) error
}

// UserCoupons is the part of coupon.Repository the cart needs.
type UserCoupons interface {
	GetUserCoupon(ctx context.Context, id int64) (*coupon.UserCoupon, error)
	SaveUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error
}
