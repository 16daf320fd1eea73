package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/freshcart/internal/domain/cart"
)

func encodeCartItem(e *jx.Encoder, it *cart.Item) {
	e.FieldStart("id")
	e.Int64(it.ID)
	e.FieldStart("product_id")
	e.Int64(it.ProductID)
	if p := it.Product; p != nil {
		e.FieldStart("product_name")
		e.Str(p.Name)
		e.FieldStart("category_id")
		e.Int64(p.Category.ID)
		e.FieldStart("unit_price")
		encodeDecimal(e, p.Price)
	}
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("user_coupon_id")
	encodeOptID(e, it.UserCouponID)
}

// GET /api/cart
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), principal(r).ConsumerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		encodeOptID(e, c.ID)
		e.FieldStart("consumer_id")
		e.Int64(c.ConsumerID)
		e.FieldStart("items")
		e.ArrStart()
		for i := range c.Items {
			e.ObjStart()
			encodeCartItem(e, &c.Items[i])
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// GET /api/cart/detail
func (h *Handler) cartDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.carts.Detail(r.Context(), principal(r).ConsumerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cart_id")
		encodeOptID(e, d.CartID)
		e.FieldStart("items")
		e.ArrStart()
		for i := range d.Lines {
			line := &d.Lines[i]
			e.ObjStart()
			encodeCartItem(e, &line.Item)
			e.FieldStart("line_price")
			encodeDecimal(e, line.LinePrice)
			e.FieldStart("discount")
			encodeDecimal(e, line.Discount)
			e.FieldStart("final_price")
			encodeDecimal(e, line.FinalPrice)
			e.FieldStart("coupon_code")
			if uc := line.UserCoupon; uc != nil && uc.Coupon != nil {
				e.Str(uc.Coupon.Code)
			} else {
				e.Null()
			}
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("total")
		encodeDecimal(e, d.Total)
		e.FieldStart("discount")
		encodeDecimal(e, d.Discount)
		e.FieldStart("final_price")
		encodeDecimal(e, d.FinalPrice)
		e.ObjEnd()
	})
}

// POST /api/cart/items
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID int64
		quantity  = 1
	)
	if err := readBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if productID <= 0 {
		writeError(w, r, invalidRequest("product_id is required"))
		return
	}

	item, err := h.carts.AddProduct(r.Context(), principal(r).ConsumerID, productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		encodeCartItem(e, item)
		e.ObjEnd()
	})
}

// PATCH /api/cart/items/{productID}
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var quantity int
	if err := readBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		quantity, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.carts.UpdateQuantity(r.Context(), principal(r).ConsumerID, productID, quantity); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/cart/items/{productID}
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveProduct(r.Context(), principal(r).ConsumerID, productID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/cart
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principal(r).ConsumerID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
