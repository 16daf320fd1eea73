package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/freshcart/internal/domain/apperr"
	"github.com/xenking/freshcart/internal/domain/coupon"
)

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("discount_type")
	if t, err := c.Type(); err == nil {
		e.Str(string(t))
	} else {
		e.Null()
	}
	e.FieldStart("discount_value")
	e.Str(c.DiscountValue)
	e.FieldStart("min_order_amount")
	e.Str(c.MinOrderAmount)
	e.FieldStart("is_active")
	e.Bool(c.IsActive)
	e.FieldStart("category_ids")
	e.ArrStart()
	for _, id := range c.CategoryIDs {
		e.Int64(id)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeUserCoupon(e *jx.Encoder, uc *coupon.UserCoupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(uc.ID)
	e.FieldStart("coupon_id")
	e.Int64(uc.CouponID)
	e.FieldStart("is_used")
	e.Bool(uc.IsUsed)
	e.FieldStart("is_applied")
	e.Bool(uc.IsApplied)
	e.FieldStart("order_id")
	encodeOptID(e, uc.OrderID)
	e.FieldStart("coupon")
	if uc.Coupon != nil {
		encodeCoupon(e, uc.Coupon)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

// GET /api/coupons
func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeCoupon(e, &list[i])
		}
		e.ArrEnd()
	})
}

func decodeRegister(d *jx.Decoder, key string, req *coupon.RegisterRequest) error {
	var err error
	switch key {
	case "code":
		req.Code, err = d.Str()
	case "name":
		req.Name, err = d.Str()
	case "discount_type":
		var s string
		s, err = optStr(d)
		req.DiscountType = coupon.DiscountType(s)
	case "discount_value":
		req.DiscountValue, err = decimalString(d)
	case "min_order_amount":
		req.MinOrderAmount, err = decimalString(d)
	case "is_active":
		req.IsActive, err = d.Bool()
	case "category_ids":
		err = d.Arr(func(d *jx.Decoder) error {
			id, err := d.Int64()
			req.CategoryIDs = append(req.CategoryIDs, id)
			return err
		})
	default:
		err = d.Skip()
	}
	return err
}

// POST /api/coupons
//
// Registers a coupon definition and issues it to every consumer.
func (h *Handler) registerCoupon(w http.ResponseWriter, r *http.Request) {
	req := coupon.RegisterRequest{IsActive: true, MinOrderAmount: "0"}
	if err := readBody(w, r, func(d *jx.Decoder, key string) error {
		return decodeRegister(d, key, &req)
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" || req.DiscountValue == "" {
		writeError(w, r, invalidRequest("code and discount_value are required"))
		return
	}

	res, err := h.coupons.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupon")
		encodeCoupon(e, res.Coupon)
		e.FieldStart("issued")
		e.Int(res.Issued)
		e.ObjEnd()
	})
}

// GET /api/coupons/my
func (h *Handler) myCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.ListAvailable(r.Context(), principal(r).ConsumerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeUserCoupon(e, &list[i])
		}
		e.ArrEnd()
	})
}

// GET /api/coupons/applicable/{productID}
func (h *Handler) applicableCoupons(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.coupons.ListApplicable(r.Context(), principal(r).ConsumerID, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			e.ObjStart()
			e.FieldStart("user_coupon")
			encodeUserCoupon(e, &list[i].UserCoupon)
			e.FieldStart("discount")
			encodeDecimal(e, list[i].Discount)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// PATCH /api/coupons/cart-items/{itemID}
//
// Body {"user_coupon_id": n} applies a coupon, null or absent clears the line.
// Every rejection other than a missing resource is reported as 403.
func (h *Handler) toggleCoupon(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var userCouponID int64
	if err := readBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "user_coupon_id" {
			return d.Skip()
		}
		userCouponID, err = optInt64(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	err = h.carts.ToggleCoupon(r.Context(), itemID, userCouponID, principal(r).ConsumerID)
	switch kind := apperr.KindOf(err); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case kind == apperr.KindNotFound || kind == apperr.KindInternal:
		writeError(w, r, err)
	default:
		writeErrorStatus(w, r, http.StatusForbidden, err)
	}
}
