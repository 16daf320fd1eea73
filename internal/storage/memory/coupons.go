package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/hashicorp/go-memdb"

	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
)

var _ coupon.Repository = (*Coupons)(nil)

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

// Coupons returns the coupon repository view of the store.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

func (r *Coupons) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		existing, err := first[coupon.Coupon](t, tableCoupons, "code", c.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return coupon.ErrDuplicateCode
		}
		c.ID = r.s.nextID(tableCoupons)
		stored := *c
		stored.CategoryIDs = slices.Clone(c.CategoryIDs)
		return insert(t, tableCoupons, stored)
	})
}

// SetActive flips the active flag of a coupon definition.
func (r *Coupons) SetActive(ctx context.Context, id int64, active bool) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		c, err := first[coupon.Coupon](t, tableCoupons, "id", id)
		if err != nil {
			return err
		}
		if c == nil {
			return coupon.ErrNotFound
		}
		c.IsActive = active
		return insert(t, tableCoupons, *c)
	})
}

func (r *Coupons) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	var c *coupon.Coupon
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		c, err = first[coupon.Coupon](t, tableCoupons, "id", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, coupon.ErrNotFound
	}
	c.CategoryIDs = slices.Clone(c.CategoryIDs)
	return c, nil
}

func (r *Coupons) List(ctx context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		out, err = all[coupon.Coupon](t, tableCoupons, "id")
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CategoryIDs = slices.Clone(out[i].CategoryIDs)
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *Coupons) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(list, func(c coupon.Coupon) bool { return !c.IsActive }), nil
}

func (r *Coupons) ExistsCode(ctx context.Context, code string) (bool, error) {
	var found bool
	err := r.s.read(ctx, func(t *memdb.Txn) error {
		c, err := first[coupon.Coupon](t, tableCoupons, "code", code)
		found = c != nil
		return err
	})
	return found, err
}

// withCoupon attaches the coupon definition to a stored user coupon.
func withCoupon(t *memdb.Txn, uc *coupon.UserCoupon) error {
	c, err := first[coupon.Coupon](t, tableCoupons, "id", uc.CouponID)
	if err != nil {
		return err
	}
	if c != nil {
		c.CategoryIDs = slices.Clone(c.CategoryIDs)
	}
	uc.Coupon = c
	return nil
}

func (r *Coupons) GetUserCoupon(ctx context.Context, id int64) (*coupon.UserCoupon, error) {
	var uc *coupon.UserCoupon
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		uc, err = first[coupon.UserCoupon](t, tableUserCoupons, "id", id)
		if err != nil || uc == nil {
			return err
		}
		return withCoupon(t, uc)
	})
	if err != nil {
		return nil, err
	}
	if uc == nil {
		return nil, coupon.ErrUserCouponNotFound
	}
	return uc, nil
}

func (r *Coupons) ListUserCoupons(ctx context.Context, consumerID int64) ([]coupon.UserCoupon, error) {
	var out []coupon.UserCoupon
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		out, err = all[coupon.UserCoupon](t, tableUserCoupons, "consumer", consumerID)
		if err != nil {
			return err
		}
		for i := range out {
			if err := withCoupon(t, &out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b coupon.UserCoupon) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *Coupons) SaveUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		existing, err := first[coupon.UserCoupon](t, tableUserCoupons, "id", uc.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return coupon.ErrUserCouponNotFound
		}
		stored := *uc
		stored.Coupon = nil
		return insert(t, tableUserCoupons, stored)
	})
}

func (r *Coupons) IssueToConsumer(ctx context.Context, consumerID int64, couponIDs []int64) (int, error) {
	var issued int
	err := r.s.write(ctx, func(t *memdb.Txn) error {
		held, err := all[coupon.UserCoupon](t, tableUserCoupons, "consumer", consumerID)
		if err != nil {
			return err
		}
		for _, id := range couponIDs {
			if slices.ContainsFunc(held, func(uc coupon.UserCoupon) bool { return uc.CouponID == id }) {
				continue
			}
			uc := coupon.UserCoupon{ID: r.s.nextID(tableUserCoupons), ConsumerID: consumerID, CouponID: id}
			if err := insert(t, tableUserCoupons, uc); err != nil {
				return err
			}
			held = append(held, uc)
			issued++
		}
		return nil
	})
	return issued, err
}

func (r *Coupons) IssueToAll(ctx context.Context, couponID int64) (int, error) {
	var issued int
	err := r.s.write(ctx, func(t *memdb.Txn) error {
		consumers, err := all[consumer.Consumer](t, tableConsumers, "id")
		if err != nil {
			return err
		}
		for _, c := range consumers {
			n, err := r.IssueToConsumer(context.WithValue(ctx, txKey{}, t), c.ID, []int64{couponID})
			if err != nil {
				return err
			}
			issued += n
		}
		return nil
	})
	return issued, err
}
