package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/coupon"
)

// ToggleCoupon sets the coupon reserved on a cart line.
//
// A userCouponID of zero or less clears the line. Otherwise the coupon must be
// eligible for the line's product at its unit price and mapped to the
// product's category. The coupon previously on the line is released, and the
// new coupon is moved off any other line of the cart it was applied to.
func (s *Service) ToggleCoupon(ctx context.Context, cartItemID, userCouponID, consumerID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		item, err := s.ownedItem(ctx, cartItemID, consumerID)
		if err != nil {
			return err
		}

		if userCouponID <= 0 {
			if item.UserCouponID == 0 {
				return nil
			}
			if err := s.release(ctx, item); err != nil {
				return err
			}
			return s.carts.SaveItem(ctx, item)
		}

		uc, err := s.coupons.GetUserCoupon(ctx, userCouponID)
		if err != nil {
			return err
		}
		if item.UserCouponID == uc.ID && uc.IsApplied {
			return nil
		}

		p := item.Product
		if err := coupon.CheckEligibility(uc, consumerID, p.Price, p.Name); err != nil {
			return err
		}
		if !uc.Coupon.AppliesToCategory(p.Category.ID) {
			return coupon.ErrCategoryMismatch
		}

		if err := s.unbindElsewhere(ctx, uc.ID, item.ID); err != nil {
			return err
		}
		if item.UserCouponID != 0 && item.UserCouponID != uc.ID {
			if err := s.release(ctx, item); err != nil {
				return err
			}
		}

		if err := uc.Apply(); err != nil {
			return err
		}
		if err := s.coupons.SaveUserCoupon(ctx, uc); err != nil {
			return errors.Wrap(err, "save user coupon")
		}
		item.UserCouponID = uc.ID
		if err := s.carts.SaveItem(ctx, item); err != nil {
			return errors.Wrap(err, "save item")
		}

		zctx.From(ctx).Debug("Coupon applied",
			zap.Int64("cart_item_id", item.ID),
			zap.Int64("user_coupon_id", uc.ID),
		)
		return nil
	})
}

// ownedItem locks the consumer's cart before the line, the same order
// checkout and line removal take them in.
func (s *Service) ownedItem(ctx context.Context, itemID, consumerID int64) (*Item, error) {
	c, err := s.carts.GetByConsumer(ctx, consumerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if c == nil || item.CartID != c.ID {
		return nil, ErrForbidden
	}
	return item, nil
}

// unbindElsewhere clears userCouponID from any line other than itemID.
func (s *Service) unbindElsewhere(ctx context.Context, userCouponID, itemID int64) error {
	other, err := s.carts.FindItemByUserCoupon(ctx, userCouponID)
	if errors.Is(err, ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find item by coupon")
	}
	if other.ID == itemID {
		return nil
	}
	other.UserCouponID = 0
	return s.carts.SaveItem(ctx, other)
}
