package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/product"
)

var (
	_ product.Repository  = (*Products)(nil)
	_ consumer.Repository = (*Consumers)(nil)
	_ auth.Repository     = (*APIKeys)(nil)
)

const productColumns = `p.id, p.name, p.price, p.weight, p.photo_url, c.id, c.name`

const getProductSQL = `SELECT ` + productColumns + `
	FROM products p JOIN categories c ON c.id = p.category_id
	WHERE p.id = $1`

const getProductsSQL = `SELECT ` + productColumns + `
	FROM products p JOIN categories c ON c.id = p.category_id
	WHERE p.id = ANY($1) ORDER BY p.id`

func scanProduct(row pgx.Row) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Weight, &p.PhotoURL, &p.Category.ID, &p.Category.Name)
	return p, err
}

// Products implements product.Repository.
type Products struct{ s *Store }

// Products returns the product repository view of the store.
func (s *Store) Products() *Products { return &Products{s: s} }

func (r *Products) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(r.s.q(ctx).QueryRow(ctx, getProductSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func (r *Products) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.s.q(ctx).Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	defer rows.Close()

	out := make([]product.Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Products) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.s.q(ctx).Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// AddCategory stores a category and assigns its id.
func (s *Store) AddCategory(ctx context.Context, c *product.Category) error {
	err := s.q(ctx).QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("inserting category %q: %w", c.Name, err)
	}
	return nil
}

// AddProduct stores a product and assigns its id.
func (s *Store) AddProduct(ctx context.Context, p *product.Product) error {
	err := s.q(ctx).QueryRow(ctx,
		`INSERT INTO products (name, price, category_id, weight, photo_url)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.Name, p.Price, p.Category.ID, p.Weight, p.PhotoURL,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("inserting product %q: %w", p.Name, err)
	}
	return nil
}

// Consumers implements consumer.Repository.
type Consumers struct{ s *Store }

// Consumers returns the consumer repository view of the store.
func (s *Store) Consumers() *Consumers { return &Consumers{s: s} }

func (r *Consumers) GetByID(ctx context.Context, id int64) (*consumer.Consumer, error) {
	var c consumer.Consumer
	err := r.s.q(ctx).QueryRow(ctx,
		`SELECT id, email, nickname, role, created_at FROM consumers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Nickname, &c.Role, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consumer.ErrNotFound
		}
		return nil, fmt.Errorf("getting consumer %d: %w", id, err)
	}
	return &c, nil
}

// AddConsumer stores a consumer and assigns its id and creation time.
func (s *Store) AddConsumer(ctx context.Context, c *consumer.Consumer) error {
	err := s.q(ctx).QueryRow(ctx,
		`INSERT INTO consumers (email, nickname, role) VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		c.Email, c.Nickname, c.Role,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting consumer %q: %w", c.Email, err)
	}
	return nil
}

// APIKeys implements auth.Repository.
type APIKeys struct{ s *Store }

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// FindByHash looks up an active API key by its hash.
func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var k auth.APIKeyInfo
	err := r.s.q(ctx).QueryRow(ctx,
		`SELECT id, key_hash, name, consumer_id, role FROM api_keys
		WHERE key_hash = $1 AND active`, hash,
	).Scan(&k.ID, &k.KeyHash, &k.Name, &k.ConsumerID, &k.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &k, nil
}

// AddAPIKey stores an API key record and assigns its id.
func (s *Store) AddAPIKey(ctx context.Context, k *auth.APIKeyInfo) error {
	err := s.q(ctx).QueryRow(ctx,
		`INSERT INTO api_keys (key_hash, name, consumer_id, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		k.KeyHash, k.Name, k.ConsumerID, k.Role,
	).Scan(&k.ID)
	if err != nil {
		return fmt.Errorf("inserting api key %q: %w", k.Name, err)
	}
	return nil
}
