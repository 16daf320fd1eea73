package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/txn"
)

const instrumentationName = "github.com/xenking/freshcart/internal/domain/order"

// UserCoupons is the part of coupon.Repository the order engine needs.
type UserCoupons interface {
	GetUserCoupon(ctx context.Context, id int64) (*coupon.UserCoupon, error)
	SaveUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error
}

// CreateOrderRequest holds the input for turning a cart into an order.
// DeliveryDate and DeliverySlot are only read for reservations.
type CreateOrderRequest struct {
	ConsumerID    int64
	DeliveryDate  *time.Time
	DeliverySlot  Slot
	IsReservation bool
}

// Service encapsulates order assembly and the order lifecycle.
type Service struct {
	orders    Repository
	carts     cart.Repository
	coupons   UserCoupons
	consumers consumer.Repository
	publisher Publisher
	tx        txn.Manager

	now     func() time.Time
	loc     *time.Location
	tracer  trace.Tracer
	metrics *metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.metrics = newMetrics(mp.Meter(instrumentationName)) }
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	carts cart.Repository,
	coupons UserCoupons,
	consumers consumer.Repository,
	publisher Publisher,
	tx txn.Manager,
	opts ...Option,
) *Service {
	s := &Service{
		orders:    orders,
		carts:     carts,
		coupons:   coupons,
		consumers: consumers,
		publisher: publisher,
		tx:        tx,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	}
	return s
}

// today returns the current calendar date in the service location.
func (s *Service) today() time.Time {
	return DateOf(s.now().In(s.loc))
}

// DateOf returns the calendar date of t as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateOrder converts the consumer's cart into a pending order and returns
// its id. Applied coupons are revalidated against the full line price and
// consumed; the cart is emptied. Any failure leaves cart, coupons and orders
// untouched.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ int64, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder",
		trace.WithAttributes(attribute.Int64("consumer.id", req.ConsumerID)),
	)
	defer func() { endSpan(span, rerr) }()

	date, slot, err := s.delivery(req)
	if err != nil {
		return 0, err
	}

	var o *Order
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetByConsumer(ctx, req.ConsumerID)
		if errors.Is(err, cart.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return errors.Wrap(err, "get cart")
		}
		if c.IsEmpty() {
			return ErrEmptyCart
		}

		var used []*coupon.UserCoupon
		o, used, err = s.assemble(ctx, c)
		if err != nil {
			return err
		}
		o.CreatedAt = s.now()
		o.Status = StatusPending
		o.IsReservation = req.IsReservation
		o.DeliveryDate = date
		o.DeliverySlot = slot

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for _, uc := range used {
			if err := uc.Use(o.ID); err != nil {
				return err
			}
			if err := s.coupons.SaveUserCoupon(ctx, uc); err != nil {
				return errors.Wrap(err, "save user coupon")
			}
		}
		if err := s.carts.ClearItems(ctx, c.ID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		s.metrics.couponsUsed.Add(ctx, int64(len(used)))
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("reservation", o.IsReservation)))
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("consumer_id", o.ConsumerID),
		zap.Stringer("total", o.TotalPrice),
		zap.Stringer("final_cost", o.FinalCost),
	)
	return o.ID, nil
}

// delivery resolves the delivery date and slot of a new order.
func (s *Service) delivery(req CreateOrderRequest) (time.Time, Slot, error) {
	if !req.IsReservation {
		return s.today().AddDate(0, 0, 1), DefaultSlot, nil
	}
	if req.DeliveryDate == nil || req.DeliverySlot == "" {
		return time.Time{}, "", ErrInvalidReservation
	}
	if !req.DeliverySlot.Valid() {
		return time.Time{}, "", ErrInvalidSlot
	}
	return DateOf(*req.DeliveryDate), req.DeliverySlot, nil
}

// assemble prices every cart line and returns the order together with the
// coupons it consumes.
func (s *Service) assemble(ctx context.Context, c *cart.Cart) (*Order, []*coupon.UserCoupon, error) {
	o := &Order{
		ConsumerID: c.ConsumerID,
		Items:      make([]Item, 0, len(c.Items)),
	}
	var (
		used []*coupon.UserCoupon
		seen = make(map[int64]struct{})
	)

	for _, ci := range c.Items {
		line := ci.LinePrice()
		item := Item{
			ProductID:   ci.ProductID,
			ProductName: ci.Product.Name,
			Quantity:    ci.Quantity,
			UnitPrice:   ci.Product.Price,
			LinePrice:   line,
			Discount:    decimal.Zero,
			FinalPrice:  line,
		}

		if ci.UserCouponID != 0 {
			if _, dup := seen[ci.UserCouponID]; dup {
				return nil, nil, ErrCouponOnManyLines
			}
			seen[ci.UserCouponID] = struct{}{}

			uc, err := s.coupons.GetUserCoupon(ctx, ci.UserCouponID)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "load coupon of cart item %d", ci.ID)
			}
			if err := coupon.CheckEligibility(uc, c.ConsumerID, line, ci.Product.Name); err != nil {
				return nil, nil, err
			}
			discount, err := coupon.Discount(line, uc.Coupon)
			if err != nil {
				return nil, nil, err
			}
			item.Discount = discount
			item.FinalPrice = line.Sub(discount)
			item.UserCouponID = uc.ID
			used = append(used, uc)
		}

		o.TotalPrice = o.TotalPrice.Add(item.LinePrice)
		o.FinalCost = o.FinalCost.Add(item.FinalPrice)
		o.Items = append(o.Items, item)
	}
	return o, used, nil
}

// GetOrder returns the order snapshot.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListOrders returns the consumer's orders, most recent first.
func (s *Service) ListOrders(ctx context.Context, consumerID int64) ([]Order, error) {
	orders, err := s.orders.ListByConsumer(ctx, consumerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	slices.SortStableFunc(orders, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return orders, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
