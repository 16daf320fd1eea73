package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/hashicorp/go-memdb"

	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/product"
)

var _ cart.Repository = (*Carts)(nil)

// Carts implements cart.Repository.
type Carts struct{ s *Store }

// Carts returns the cart repository view of the store.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

func withProduct(t *memdb.Txn, item *cart.Item) error {
	p, err := first[product.Product](t, tableProducts, "id", item.ProductID)
	if err != nil {
		return err
	}
	if p == nil {
		return &product.NotFoundError{ProductID: item.ProductID}
	}
	item.Product = p
	return nil
}

func (r *Carts) GetByConsumer(ctx context.Context, consumerID int64) (*cart.Cart, error) {
	var c *cart.Cart
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		c, err = first[cart.Cart](t, tableCarts, "consumer", consumerID)
		if err != nil || c == nil {
			return err
		}
		items, err := all[cart.Item](t, tableCartItems, "cart", c.ID)
		if err != nil {
			return err
		}
		slices.SortFunc(items, func(a, b cart.Item) int { return cmp.Compare(a.ID, b.ID) })
		for i := range items {
			if err := withProduct(t, &items[i]); err != nil {
				return err
			}
		}
		c.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (r *Carts) Create(ctx context.Context, c *cart.Cart) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		c.ID = r.s.nextID(tableCarts)
		stored := *c
		stored.Items = nil
		return insert(t, tableCarts, stored)
	})
}

func (r *Carts) getItem(ctx context.Context, match func(t *memdb.Txn) (*cart.Item, error)) (*cart.Item, error) {
	var item *cart.Item
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		item, err = match(t)
		if err != nil || item == nil {
			return err
		}
		return withProduct(t, item)
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, cart.ErrItemNotFound
	}
	return item, nil
}

func (r *Carts) GetItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	return r.getItem(ctx, func(t *memdb.Txn) (*cart.Item, error) {
		return first[cart.Item](t, tableCartItems, "id", itemID)
	})
}

func (r *Carts) FindItem(ctx context.Context, cartID, productID int64) (*cart.Item, error) {
	return r.getItem(ctx, func(t *memdb.Txn) (*cart.Item, error) {
		items, err := all[cart.Item](t, tableCartItems, "cart", cartID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.ProductID == productID {
				return &it, nil
			}
		}
		return nil, nil
	})
}

func (r *Carts) FindItemByUserCoupon(ctx context.Context, userCouponID int64) (*cart.Item, error) {
	return r.getItem(ctx, func(t *memdb.Txn) (*cart.Item, error) {
		items, err := all[cart.Item](t, tableCartItems, "id")
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.UserCouponID == userCouponID {
				return &it, nil
			}
		}
		return nil, nil
	})
}

func (r *Carts) SaveItem(ctx context.Context, item *cart.Item) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		if item.ID == 0 {
			item.ID = r.s.nextID(tableCartItems)
		}
		stored := *item
		stored.Product = nil
		return insert(t, tableCartItems, stored)
	})
}

func (r *Carts) DeleteItem(ctx context.Context, itemID int64) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		if _, err := t.DeleteAll(tableCartItems, "id", itemID); err != nil {
			return err
		}
		return nil
	})
}

func (r *Carts) ClearItems(ctx context.Context, cartID int64) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		_, err := t.DeleteAll(tableCartItems, "cart", cartID)
		return err
	})
}
