package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/freshcart/internal/domain/coupon"
)

var _ coupon.Repository = (*Coupons)(nil)

const couponSelectSQL = `SELECT c.id, c.code, c.name, c.discount_type, c.discount_value,
		c.min_order_amount, c.is_active,
		COALESCE(array_agg(cc.category_id ORDER BY cc.category_id)
			FILTER (WHERE cc.category_id IS NOT NULL), '{}')
	FROM coupons c
	LEFT JOIN coupon_categories cc ON cc.coupon_id = c.id`

const userCouponColumns = `id, consumer_id, coupon_id, is_used, is_applied, order_id`

func scanCoupon(row pgx.Row) (coupon.Coupon, error) {
	var (
		c  coupon.Coupon
		dt *string
	)
	err := row.Scan(&c.ID, &c.Code, &c.Name, &dt, &c.DiscountValue, &c.MinOrderAmount, &c.IsActive, &c.CategoryIDs)
	if dt != nil {
		c.DiscountType = coupon.DiscountType(*dt)
	}
	return c, err
}

func scanUserCoupon(row pgx.Row) (coupon.UserCoupon, error) {
	var (
		uc      coupon.UserCoupon
		orderID *int64
	)
	err := row.Scan(&uc.ID, &uc.ConsumerID, &uc.CouponID, &uc.IsUsed, &uc.IsApplied, &orderID)
	if orderID != nil {
		uc.OrderID = *orderID
	}
	return uc, err
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

// Coupons returns the coupon repository view of the store.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

func (r *Coupons) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.InTx(ctx, func(ctx context.Context) error {
		var dt *string
		if c.DiscountType != "" {
			v := string(c.DiscountType)
			dt = &v
		}
		err := r.s.q(ctx).QueryRow(ctx,
			`INSERT INTO coupons (code, name, discount_type, discount_value, min_order_amount, is_active)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			c.Code, c.Name, dt, c.DiscountValue, c.MinOrderAmount, c.IsActive,
		).Scan(&c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return coupon.ErrDuplicateCode
			}
			return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
		}
		if len(c.CategoryIDs) == 0 {
			return nil
		}
		if _, err := r.s.q(ctx).Exec(ctx,
			`INSERT INTO coupon_categories (coupon_id, category_id)
			SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
			c.ID, c.CategoryIDs,
		); err != nil {
			return fmt.Errorf("mapping coupon %q categories: %w", c.Code, err)
		}
		return nil
	})
}

// SetActive flips the active flag of a coupon definition.
func (r *Coupons) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE coupons SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("updating coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func (r *Coupons) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.s.q(ctx).QueryRow(ctx, couponSelectSQL+` WHERE c.id = $1 GROUP BY c.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %d: %w", id, err)
	}
	return &c, nil
}

func (r *Coupons) listWhere(ctx context.Context, where string, args ...any) ([]coupon.Coupon, error) {
	rows, err := r.s.q(ctx).Query(ctx, couponSelectSQL+where+` GROUP BY c.id ORDER BY c.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Coupon, error) {
		return scanCoupon(row)
	})
}

func (r *Coupons) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.listWhere(ctx, "")
}

func (r *Coupons) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	return r.listWhere(ctx, ` WHERE c.is_active`)
}

func (r *Coupons) ExistsCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.s.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking coupon code %q: %w", code, err)
	}
	return exists, nil
}

// GetUserCoupon loads the user coupon with its definition. Inside a
// transaction the user coupon row stays locked until commit.
func (r *Coupons) GetUserCoupon(ctx context.Context, id int64) (*coupon.UserCoupon, error) {
	uc, err := scanUserCoupon(r.s.q(ctx).QueryRow(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons WHERE id = $1`+forUpdate(ctx), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrUserCouponNotFound
		}
		return nil, fmt.Errorf("getting user coupon %d: %w", id, err)
	}

	c, err := r.GetByID(ctx, uc.CouponID)
	switch {
	case errors.Is(err, coupon.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		uc.Coupon = c
	}
	return &uc, nil
}

func (r *Coupons) ListUserCoupons(ctx context.Context, consumerID int64) ([]coupon.UserCoupon, error) {
	rows, err := r.s.q(ctx).Query(ctx,
		`SELECT `+userCouponColumns+` FROM user_coupons WHERE consumer_id = $1 ORDER BY id`, consumerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user coupons: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.UserCoupon, error) {
		return scanUserCoupon(row)
	})
	if err != nil || len(list) == 0 {
		return list, err
	}

	ids := make([]int64, len(list))
	for i, uc := range list {
		ids[i] = uc.CouponID
	}
	defs, err := r.listWhere(ctx, ` WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*coupon.Coupon, len(defs))
	for i := range defs {
		byID[defs[i].ID] = &defs[i]
	}
	for i := range list {
		list[i].Coupon = byID[list[i].CouponID]
	}
	return list, nil
}

func (r *Coupons) SaveUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error {
	tag, err := r.s.q(ctx).Exec(ctx,
		`UPDATE user_coupons SET is_used = $2, is_applied = $3, order_id = $4 WHERE id = $1`,
		uc.ID, uc.IsUsed, uc.IsApplied, nullID(uc.OrderID),
	)
	if err != nil {
		return fmt.Errorf("updating user coupon %d: %w", uc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUserCouponNotFound
	}
	return nil
}

func (r *Coupons) IssueToConsumer(ctx context.Context, consumerID int64, couponIDs []int64) (int, error) {
	tag, err := r.s.q(ctx).Exec(ctx,
		`INSERT INTO user_coupons (consumer_id, coupon_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (consumer_id, coupon_id) DO NOTHING`,
		consumerID, couponIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("issuing coupons to consumer %d: %w", consumerID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Coupons) IssueToAll(ctx context.Context, couponID int64) (int, error) {
	tag, err := r.s.q(ctx).Exec(ctx,
		`INSERT INTO user_coupons (consumer_id, coupon_id)
		SELECT id, $1 FROM consumers
		ON CONFLICT (consumer_id, coupon_id) DO NOTHING`,
		couponID,
	)
	if err != nil {
		return 0, fmt.Errorf("issuing coupon %d: %w", couponID, err)
	}
	return int(tag.RowsAffected()), nil
}
