package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Slot is a delivery time window.
type Slot string

const (
	SlotMorning   Slot = "MORNING"
	SlotAfternoon Slot = "AFTERNOON"
	SlotEvening   Slot = "EVENING"
)

// DefaultSlot is assigned to orders that are not reservations.
const DefaultSlot = SlotMorning

// Valid reports whether s is a known slot.
func (s Slot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening:
		return true
	}
	return false
}

// Order is a priced snapshot of a cart. Only Status and the delivery fields
// change after creation.
type Order struct {
	ID            int64
	ConsumerID    int64
	CreatedAt     time.Time
	Status        Status
	IsReservation bool
	DeliveryDate  time.Time
	DeliverySlot  Slot
	TotalPrice    decimal.Decimal
	FinalCost     decimal.Decimal
	Items         []Item
}

// Discount is the total discount granted on the order.
func (o *Order) Discount() decimal.Decimal {
	return o.TotalPrice.Sub(o.FinalCost)
}

// Item is an order line. UserCouponID is zero when no coupon was consumed.
type Item struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	ProductName  string
	Quantity     int
	UnitPrice    decimal.Decimal
	LinePrice    decimal.Decimal
	Discount     decimal.Decimal
	FinalPrice   decimal.Decimal
	UserCouponID int64
}

var (
	ErrNotFound            = apperr.New(apperr.KindNotFound, "order_not_found", "order not found")
	ErrForbidden           = apperr.New(apperr.KindForbidden, "order_forbidden", "order belongs to another consumer")
	ErrEmptyCart           = apperr.New(apperr.KindInvalidInput, "empty_cart", "cart is empty")
	ErrInvalidReservation  = apperr.New(apperr.KindInvalidInput, "invalid_reservation", "reservation requires delivery date and slot")
	ErrInvalidSlot         = apperr.New(apperr.KindInvalidInput, "invalid_delivery_slot", "unknown delivery slot")
	ErrMissingDelivery     = apperr.New(apperr.KindInvalidInput, "missing_delivery", "delivery date and slot are required")
	ErrInvalidDeliveryDate = apperr.New(apperr.KindInvalidInput, "invalid_delivery_date", "delivery date must be tomorrow or later")
	ErrAlreadyCancelled    = apperr.New(apperr.KindConflict, "order_already_cancelled", "order already cancelled")
	ErrAlreadyCompleted    = apperr.New(apperr.KindConflict, "order_already_completed", "order already completed")
	ErrCouponOnManyLines   = apperr.New(apperr.KindConflict, "coupon_on_many_lines", "coupon applied to more than one cart line")
)

// Repository persists orders. Reads made with a transactional context lock the
// order row until the transaction ends.
type Repository interface {
	// Create stores the order and its items, assigning ids.
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with its items or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// ListByConsumer returns the consumer's orders, newest first.
	ListByConsumer(ctx context.Context, consumerID int64) ([]Order, error)
	// Save writes the mutable fields: status and delivery.
	Save(ctx context.Context, o *Order) error
}
