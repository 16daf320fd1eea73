package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/domain/txn"
)

// Service implements cart editing and the coupon toggle.
type Service struct {
	carts    Repository
	products product.Repository
	coupons  UserCoupons
	tx       txn.Manager
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, coupons UserCoupons, tx txn.Manager) *Service {
	return &Service{carts: carts, products: products, coupons: coupons, tx: tx}
}

// AddProduct adds quantity of productID to the consumer's cart, creating the
// cart on first use. Adding a product already in the cart increases its line.
func (s *Service) AddProduct(ctx context.Context, consumerID, productID int64, quantity int) (*Item, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var item *Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.products.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		c, err := s.cartFor(ctx, consumerID)
		if err != nil {
			return err
		}

		item, err = s.carts.FindItem(ctx, c.ID, productID)
		switch {
		case errors.Is(err, ErrItemNotFound):
			item = &Item{CartID: c.ID, ProductID: productID}
		case err != nil:
			return errors.Wrap(err, "find item")
		}
		item.Quantity += quantity
		item.Product = p
		return s.carts.SaveItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// cartFor returns the consumer's cart, creating an empty one if needed.
func (s *Service) cartFor(ctx context.Context, consumerID int64) (*Cart, error) {
	c, err := s.carts.GetByConsumer(ctx, consumerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}
	c = &Cart{ConsumerID: consumerID}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// UpdateQuantity sets the quantity of the consumer's line for productID.
func (s *Service) UpdateQuantity(ctx context.Context, consumerID, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.consumerItem(ctx, consumerID, productID)
		if err != nil {
			return err
		}
		item.Quantity = quantity
		return s.carts.SaveItem(ctx, item)
	})
}

// RemoveProduct deletes the consumer's line for productID and releases the
// coupon applied to it.
func (s *Service) RemoveProduct(ctx context.Context, consumerID, productID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.consumerItem(ctx, consumerID, productID)
		if err != nil {
			return err
		}
		if err := s.release(ctx, item); err != nil {
			return err
		}
		return s.carts.DeleteItem(ctx, item.ID)
	})
}

// Clear removes every line of the consumer's cart and releases their coupons.
// Clearing a missing cart is a no-op.
func (s *Service) Clear(ctx context.Context, consumerID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetByConsumer(ctx, consumerID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "get cart")
		}
		for i := range c.Items {
			if err := s.release(ctx, &c.Items[i]); err != nil {
				return err
			}
		}
		return s.carts.ClearItems(ctx, c.ID)
	})
}

// Get returns the consumer's cart. A consumer without a cart gets an empty one
// that is not persisted.
func (s *Service) Get(ctx context.Context, consumerID int64) (*Cart, error) {
	c, err := s.carts.GetByConsumer(ctx, consumerID)
	if errors.Is(err, ErrNotFound) {
		return &Cart{ConsumerID: consumerID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Line is a priced cart line.
type Line struct {
	Item       Item
	LinePrice  decimal.Decimal
	Discount   decimal.Decimal
	FinalPrice decimal.Decimal
	UserCoupon *coupon.UserCoupon
}

// Detail is a priced view of a cart.
type Detail struct {
	CartID     int64
	Lines      []Line
	Total      decimal.Decimal
	Discount   decimal.Decimal
	FinalPrice decimal.Decimal
}

// Detail prices every line of the consumer's cart with its applied coupon.
// Malformed coupons price as no discount.
func (s *Service) Detail(ctx context.Context, consumerID int64) (*Detail, error) {
	c, err := s.Get(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	d := &Detail{CartID: c.ID, Lines: make([]Line, 0, len(c.Items))}
	for _, item := range c.Items {
		line := Line{Item: item, LinePrice: item.LinePrice()}
		if item.UserCouponID != 0 {
			uc, err := s.coupons.GetUserCoupon(ctx, item.UserCouponID)
			if err != nil {
				return nil, errors.Wrapf(err, "load coupon of item %d", item.ID)
			}
			line.UserCoupon = uc
			line.Discount = coupon.ComputeDiscount(ctx, line.LinePrice, uc.Coupon)
		}
		line.FinalPrice = line.LinePrice.Sub(line.Discount)

		d.Total = d.Total.Add(line.LinePrice)
		d.Discount = d.Discount.Add(line.Discount)
		d.Lines = append(d.Lines, line)
	}
	d.FinalPrice = d.Total.Sub(d.Discount)
	return d, nil
}

func (s *Service) consumerItem(ctx context.Context, consumerID, productID int64) (*Item, error) {
	c, err := s.carts.GetByConsumer(ctx, consumerID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.carts.FindItem(ctx, c.ID, productID)
}

// release un-applies the coupon reserved on item, if any, and unbinds it.
func (s *Service) release(ctx context.Context, item *Item) error {
	if item.UserCouponID == 0 {
		return nil
	}
	uc, err := s.coupons.GetUserCoupon(ctx, item.UserCouponID)
	if err != nil {
		return errors.Wrapf(err, "load coupon of item %d", item.ID)
	}
	uc.Release()
	if err := s.coupons.SaveUserCoupon(ctx, uc); err != nil {
		return errors.Wrap(err, "save user coupon")
	}
	item.UserCouponID = 0
	return nil
}
