// Package seed loads a demo catalog into a store: categories, products,
// coupons, and consumers with API keys who receive every active coupon.
package seed

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/domain/txn"
)

// Store is implemented by both storage backends.
type Store interface {
	txn.Manager
	AddCategory(ctx context.Context, c *product.Category) error
	AddProduct(ctx context.Context, p *product.Product) error
	AddConsumer(ctx context.Context, c *consumer.Consumer) error
	AddAPIKey(ctx context.Context, k *auth.APIKeyInfo) error
}

type Product struct {
	Name     string
	Price    decimal.Decimal
	Category string
	Weight   string
	PhotoURL string
}

type Consumer struct {
	Email    string
	Nickname string
	Role     consumer.Role
	APIKey   string
}

type Coupon struct {
	Code           string
	Name           string
	DiscountType   coupon.DiscountType
	DiscountValue  string
	MinOrderAmount string
	Categories     []string
}

// Catalog is the parsed seed document.
type Catalog struct {
	Categories []string
	Products   []Product
	Consumers  []Consumer
	Coupons    []Coupon
}

// Result counts what Load created.
type Result struct {
	Categories int
	Products   int
	Consumers  int
	Coupons    int
	Issued     int
}

// Load writes the catalog in one transaction. API keys are stored as
// HMAC hashes under pepper.
func Load(ctx context.Context, st Store, coupons *coupon.Service, cat *Catalog, pepper []byte) (*Result, error) {
	var res Result
	err := st.InTx(ctx, func(ctx context.Context) error {
		categories := make(map[string]product.Category, len(cat.Categories))
		for _, name := range cat.Categories {
			c := product.Category{Name: name}
			if err := st.AddCategory(ctx, &c); err != nil {
				return errors.Wrapf(err, "category %q", name)
			}
			categories[name] = c
			res.Categories++
		}

		for _, p := range cat.Products {
			c, ok := categories[p.Category]
			if !ok {
				return errors.Wrapf(product.ErrCategoryNotFound, "product %q: category %q", p.Name, p.Category)
			}
			rec := product.Product{Name: p.Name, Price: p.Price, Category: c, Weight: p.Weight, PhotoURL: p.PhotoURL}
			if err := st.AddProduct(ctx, &rec); err != nil {
				return errors.Wrapf(err, "product %q", p.Name)
			}
			res.Products++
		}

		for _, c := range cat.Coupons {
			ids := make([]int64, 0, len(c.Categories))
			for _, name := range c.Categories {
				cg, ok := categories[name]
				if !ok {
					return errors.Wrapf(product.ErrCategoryNotFound, "coupon %q: category %q", c.Code, name)
				}
				ids = append(ids, cg.ID)
			}
			if _, err := coupons.Register(ctx, coupon.RegisterRequest{
				Code:           c.Code,
				Name:           c.Name,
				DiscountType:   c.DiscountType,
				DiscountValue:  c.DiscountValue,
				MinOrderAmount: c.MinOrderAmount,
				IsActive:       true,
				CategoryIDs:    ids,
			}); err != nil {
				return errors.Wrapf(err, "coupon %q", c.Code)
			}
			res.Coupons++
		}

		for _, c := range cat.Consumers {
			rec := consumer.Consumer{Email: c.Email, Nickname: c.Nickname, Role: c.Role}
			if err := st.AddConsumer(ctx, &rec); err != nil {
				return errors.Wrapf(err, "consumer %q", c.Email)
			}
			res.Consumers++

			n, err := coupons.IssueActive(ctx, rec.ID)
			if err != nil {
				return errors.Wrapf(err, "coupons of %q", c.Email)
			}
			res.Issued += n

			if c.APIKey == "" {
				continue
			}
			if err := st.AddAPIKey(ctx, &auth.APIKeyInfo{
				KeyHash:    auth.HashKey(pepper, c.APIKey),
				Name:       c.Nickname,
				ConsumerID: rec.ID,
				Role:       rec.Role,
			}); err != nil {
				return errors.Wrapf(err, "api key of %q", c.Email)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
