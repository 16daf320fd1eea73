package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "product_not_found", "product not found")
	// ErrCategoryNotFound is returned when a referenced category does not exist.
	ErrCategoryNotFound = apperr.New(apperr.KindNotFound, "category_not_found", "category not found")
)

// NotFoundError carries the id of the missing product.
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Category groups products; coupons are scoped to categories.
type Category struct {
	ID   int64
	Name string
}

// Product represents a catalog item available for purchase. The category is
// always loaded together with the product.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Category Category
	Weight   string
	PhotoURL string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByID returns the product with its category or a *NotFoundError.
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
