package seed

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
)

// Parse decodes a catalog document. Unknown fields are ignored.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "categories":
			return d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				cat.Categories = append(cat.Categories, s)
				return err
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := parseProduct(d)
				cat.Products = append(cat.Products, p)
				return err
			})
		case "consumers":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := parseConsumer(d)
				cat.Consumers = append(cat.Consumers, c)
				return err
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := parseCoupon(d)
				cat.Coupons = append(cat.Coupons, c)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	return &cat, nil
}

func parseProduct(d *jx.Decoder) (Product, error) {
	var p Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "category":
			p.Category, err = d.Str()
		case "weight":
			p.Weight, err = d.Str()
		case "photo_url":
			p.PhotoURL, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return p, err
}

func parseConsumer(d *jx.Decoder) (Consumer, error) {
	c := Consumer{Role: consumer.RoleUser}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			c.Email, err = d.Str()
		case "nickname":
			c.Nickname, err = d.Str()
		case "role":
			var s string
			s, err = d.Str()
			c.Role = consumer.Role(s)
			if err == nil && !c.Role.Valid() {
				err = errors.Errorf("unknown role %q", s)
			}
		case "api_key":
			c.APIKey, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return c, err
}

func parseCoupon(d *jx.Decoder) (Coupon, error) {
	c := Coupon{MinOrderAmount: "0"}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			c.DiscountType = coupon.DiscountType(s)
		case "discount_value":
			c.DiscountValue, err = d.Str()
		case "min_order_amount":
			c.MinOrderAmount, err = d.Str()
		case "categories":
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				c.Categories = append(c.Categories, s)
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return c, err
}
