package coupon

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/apperr"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/domain/txn"
)

// ErrInvalidDefinition is returned when a coupon registration is incomplete.
var ErrInvalidDefinition = apperr.New(apperr.KindInvalidInput, "coupon_invalid_definition", "invalid coupon definition")

// RegisterRequest describes a new coupon definition.
type RegisterRequest struct {
	Code           string
	Name           string
	DiscountType   DiscountType
	DiscountValue  string
	MinOrderAmount string
	IsActive       bool
	CategoryIDs    []int64
}

// RegisterResult reports the created coupon and how many consumers received it.
type RegisterResult struct {
	Coupon *Coupon
	Issued int
}

// Applicable is a coupon the consumer can use on a product, with the discount
// it would grant on the product's unit price.
type Applicable struct {
	UserCoupon UserCoupon
	Discount   decimal.Decimal
}

// Service manages coupon definitions and consumer coupon listings.
type Service struct {
	coupons  Repository
	products product.Repository
	tx       txn.Manager
}

// NewService creates a coupon Service.
func NewService(coupons Repository, products product.Repository, tx txn.Manager) *Service {
	return &Service{coupons: coupons, products: products, tx: tx}
}

// Register validates and stores a coupon definition, then issues it to every
// existing consumer in the same transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	c, err := s.newCoupon(req)
	if err != nil {
		return nil, err
	}

	var res RegisterResult
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkCategories(ctx, c.CategoryIDs); err != nil {
			return err
		}
		exists, err := s.coupons.ExistsCode(ctx, c.Code)
		if err != nil {
			return errors.Wrap(err, "check code")
		}
		if exists {
			return ErrDuplicateCode
		}
		if err := s.coupons.Create(ctx, c); err != nil {
			return errors.Wrap(err, "create coupon")
		}
		issued, err := s.coupons.IssueToAll(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "issue coupon")
		}
		res = RegisterResult{Coupon: c, Issued: issued}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon registered",
		zap.Int64("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("type", string(c.DiscountType)),
		zap.Int("issued", res.Issued),
	)
	return &res, nil
}

func (s *Service) newCoupon(req RegisterRequest) (*Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidDefinition
	}
	if len(req.CategoryIDs) == 0 {
		return nil, ErrInvalidDefinition
	}

	value, err := decimal.NewFromString(req.DiscountValue)
	if err != nil {
		return nil, &MalformedError{Field: "discount_value", Value: req.DiscountValue}
	}
	if !value.IsPositive() {
		return nil, ErrInvalidDefinition
	}

	typ := req.DiscountType
	switch {
	case typ == "":
		if typ, err = InferDiscountType(req.DiscountValue); err != nil {
			return nil, err
		}
	case !typ.Valid():
		return nil, ErrInvalidDefinition
	}

	c := &Coupon{
		Code:           code,
		Name:           strings.TrimSpace(req.Name),
		DiscountType:   typ,
		DiscountValue:  value.String(),
		MinOrderAmount: "0",
		IsActive:       req.IsActive,
		CategoryIDs:    slices.Compact(slices.Sorted(slices.Values(req.CategoryIDs))),
	}
	if req.MinOrderAmount != "" {
		minimum, err := decimal.NewFromString(req.MinOrderAmount)
		if err != nil || minimum.IsNegative() {
			return nil, &MalformedError{Field: "min_order_amount", Value: req.MinOrderAmount}
		}
		c.MinOrderAmount = minimum.String()
	}
	return c, nil
}

func (s *Service) checkCategories(ctx context.Context, ids []int64) error {
	categories, err := s.products.ListCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	known := make(map[int64]struct{}, len(categories))
	for _, c := range categories {
		known[c.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return errors.Wrapf(product.ErrCategoryNotFound, "category %d", id)
		}
	}
	return nil
}

// List returns every coupon definition with its categories.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.coupons.List(ctx)
}

// ListAvailable returns the consumer's unused coupons whose definition is active.
func (s *Service) ListAvailable(ctx context.Context, consumerID int64) ([]UserCoupon, error) {
	all, err := s.coupons.ListUserCoupons(ctx, consumerID)
	if err != nil {
		return nil, errors.Wrap(err, "list user coupons")
	}
	return slices.DeleteFunc(all, func(uc UserCoupon) bool {
		return uc.IsUsed || uc.Coupon == nil || !uc.Coupon.IsActive
	}), nil
}

// ListApplicable returns the consumer's coupons usable on productID, best
// discount first. Coupons with malformed terms are skipped.
func (s *Service) ListApplicable(ctx context.Context, consumerID, productID int64) ([]Applicable, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	available, err := s.ListAvailable(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	out := make([]Applicable, 0, len(available))
	for _, uc := range available {
		c := uc.Coupon
		if !c.AppliesToCategory(p.Category.ID) {
			continue
		}
		minimum, err := c.Minimum()
		if err != nil {
			lg.Warn("Skipping coupon with malformed minimum",
				zap.Int64("coupon_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		if p.Price.LessThan(minimum) {
			continue
		}
		out = append(out, Applicable{
			UserCoupon: uc,
			Discount:   ComputeDiscount(ctx, p.Price, c),
		})
	}

	slices.SortStableFunc(out, func(a, b Applicable) int {
		return b.Discount.Cmp(a.Discount)
	})
	return out, nil
}

// IssueActive gives a consumer every active coupon they do not hold yet.
// Seeding calls it for every consumer it creates.
func (s *Service) IssueActive(ctx context.Context, consumerID int64) (int, error) {
	var issued int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		active, err := s.coupons.ListActive(ctx)
		if err != nil {
			return errors.Wrap(err, "list active coupons")
		}
		ids := make([]int64, len(active))
		for i, c := range active {
			ids[i] = c.ID
		}
		issued, err = s.coupons.IssueToConsumer(ctx, consumerID, ids)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "issue active coupons")
	}
	return issued, nil
}
