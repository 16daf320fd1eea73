package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/product"
)

var _ cart.Repository = (*Carts)(nil)

const cartItemSelectSQL = `SELECT i.id, i.cart_id, i.product_id, i.quantity, i.user_coupon_id,
		` + productColumns + `
	FROM cart_items i
	JOIN products p ON p.id = i.product_id
	JOIN categories c ON c.id = p.category_id`

func scanCartItem(row pgx.Row) (cart.Item, error) {
	var (
		it   cart.Item
		ucID *int64
		p    product.Product
	)
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &ucID,
		&p.ID, &p.Name, &p.Price, &p.Weight, &p.PhotoURL, &p.Category.ID, &p.Category.Name)
	if ucID != nil {
		it.UserCouponID = *ucID
	}
	it.Product = &p
	return it, err
}

// Carts implements cart.Repository.
type Carts struct{ s *Store }

// Carts returns the cart repository view of the store.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

// GetByConsumer loads the cart and its lines. Inside a transaction the cart
// row stays locked until commit, serializing checkouts of the same cart.
func (r *Carts) GetByConsumer(ctx context.Context, consumerID int64) (*cart.Cart, error) {
	c := cart.Cart{ConsumerID: consumerID}
	err := r.s.q(ctx).QueryRow(ctx,
		`SELECT id FROM carts WHERE consumer_id = $1`+forUpdate(ctx), consumerID,
	).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart of consumer %d: %w", consumerID, err)
	}

	rows, err := r.s.q(ctx).Query(ctx, cartItemSelectSQL+` WHERE i.cart_id = $1 ORDER BY i.id`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		return scanCartItem(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning cart items: %w", err)
	}
	return &c, nil
}

func (r *Carts) Create(ctx context.Context, c *cart.Cart) error {
	err := r.s.q(ctx).QueryRow(ctx,
		`INSERT INTO carts (consumer_id) VALUES ($1)
		ON CONFLICT (consumer_id) DO UPDATE SET consumer_id = EXCLUDED.consumer_id
		RETURNING id`, c.ConsumerID,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating cart of consumer %d: %w", c.ConsumerID, err)
	}
	return nil
}

func (r *Carts) getItem(ctx context.Context, where string, args ...any) (*cart.Item, error) {
	sql := cartItemSelectSQL + where
	if lock := forUpdate(ctx); lock != "" {
		sql += lock + " OF i"
	}
	it, err := scanCartItem(r.s.q(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting cart item: %w", err)
	}
	return &it, nil
}

func (r *Carts) GetItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	return r.getItem(ctx, ` WHERE i.id = $1`, itemID)
}

func (r *Carts) FindItem(ctx context.Context, cartID, productID int64) (*cart.Item, error) {
	return r.getItem(ctx, ` WHERE i.cart_id = $1 AND i.product_id = $2`, cartID, productID)
}

func (r *Carts) FindItemByUserCoupon(ctx context.Context, userCouponID int64) (*cart.Item, error) {
	return r.getItem(ctx, ` WHERE i.user_coupon_id = $1 ORDER BY i.id LIMIT 1`, userCouponID)
}

func (r *Carts) SaveItem(ctx context.Context, item *cart.Item) error {
	if item.ID == 0 {
		err := r.s.q(ctx).QueryRow(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, user_coupon_id)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			item.CartID, item.ProductID, item.Quantity, nullID(item.UserCouponID),
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("inserting cart item: %w", err)
		}
		return nil
	}

	tag, err := r.s.q(ctx).Exec(ctx,
		`UPDATE cart_items SET quantity = $2, user_coupon_id = $3 WHERE id = $1`,
		item.ID, item.Quantity, nullID(item.UserCouponID),
	)
	if err != nil {
		return fmt.Errorf("updating cart item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (r *Carts) DeleteItem(ctx context.Context, itemID int64) error {
	if _, err := r.s.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("deleting cart item %d: %w", itemID, err)
	}
	return nil
}

func (r *Carts) ClearItems(ctx context.Context, cartID int64) error {
	if _, err := r.s.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clearing cart %d: %w", cartID, err)
	}
	return nil
}
