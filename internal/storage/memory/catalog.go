package memory

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/product"
)

var (
	_ product.Repository  = (*Products)(nil)
	_ consumer.Repository = (*Consumers)(nil)
	_ auth.Repository     = (*APIKeys)(nil)
)

// AddCategory stores a category and assigns its id.
func (s *Store) AddCategory(ctx context.Context, c *product.Category) error {
	c.ID = s.nextID(tableCategories)
	return s.write(ctx, func(t *memdb.Txn) error { return insert(t, tableCategories, *c) })
}

// AddProduct stores a product and assigns its id. The category must exist.
func (s *Store) AddProduct(ctx context.Context, p *product.Product) error {
	return s.write(ctx, func(t *memdb.Txn) error {
		c, err := first[product.Category](t, tableCategories, "id", p.Category.ID)
		if err != nil {
			return err
		}
		if c == nil {
			return product.ErrCategoryNotFound
		}
		p.ID = s.nextID(tableProducts)
		p.Category = *c
		return insert(t, tableProducts, *p)
	})
}

// AddConsumer stores a consumer and assigns its id.
func (s *Store) AddConsumer(ctx context.Context, c *consumer.Consumer) error {
	c.ID = s.nextID(tableConsumers)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return s.write(ctx, func(t *memdb.Txn) error { return insert(t, tableConsumers, *c) })
}

// AddAPIKey stores an API key record and assigns its id.
func (s *Store) AddAPIKey(ctx context.Context, k *auth.APIKeyInfo) error {
	k.ID = s.nextID(tableAPIKeys)
	return s.write(ctx, func(t *memdb.Txn) error { return insert(t, tableAPIKeys, *k) })
}

// Products implements product.Repository.
type Products struct{ s *Store }

// Products returns the product repository view of the store.
func (s *Store) Products() *Products { return &Products{s: s} }

func (r *Products) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var p *product.Product
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		p, err = first[product.Product](t, tableProducts, "id", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &product.NotFoundError{ProductID: id}
	}
	return p, nil
}

func (r *Products) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	err := r.s.read(ctx, func(t *memdb.Txn) error {
		for _, id := range ids {
			p, err := first[product.Product](t, tableProducts, "id", id)
			if err != nil {
				return err
			}
			if p != nil {
				out = append(out, *p)
			}
		}
		return nil
	})
	return out, err
}

func (r *Products) ListCategories(ctx context.Context) ([]product.Category, error) {
	var out []product.Category
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		out, err = all[product.Category](t, tableCategories, "id")
		return err
	})
	return out, err
}

// Consumers implements consumer.Repository.
type Consumers struct{ s *Store }

// Consumers returns the consumer repository view of the store.
func (s *Store) Consumers() *Consumers { return &Consumers{s: s} }

func (r *Consumers) GetByID(ctx context.Context, id int64) (*consumer.Consumer, error) {
	var c *consumer.Consumer
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		c, err = first[consumer.Consumer](t, tableConsumers, "id", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, consumer.ErrNotFound
	}
	return c, nil
}

// APIKeys implements auth.Repository.
type APIKeys struct{ s *Store }

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var k *auth.APIKeyInfo
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		k, err = first[auth.APIKeyInfo](t, tableAPIKeys, "hash", hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, auth.ErrUnauthorized
	}
	return k, nil
}
