package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/freshcart/internal/domain/order"
)

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("consumer_id")
	e.Int64(o.ConsumerID)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("is_reservation")
	e.Bool(o.IsReservation)
	e.FieldStart("delivery_date")
	encodeDate(e, o.DeliveryDate)
	e.FieldStart("delivery_slot")
	encodeOptStr(e, string(o.DeliverySlot))
	e.FieldStart("total_price")
	encodeDecimal(e, o.TotalPrice)
	e.FieldStart("discount")
	encodeDecimal(e, o.Discount())
	e.FieldStart("final_cost")
	encodeDecimal(e, o.FinalCost)
	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		it := &o.Items[i]
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		encodeDecimal(e, it.UnitPrice)
		e.FieldStart("line_price")
		encodeDecimal(e, it.LinePrice)
		e.FieldStart("discount")
		encodeDecimal(e, it.Discount)
		e.FieldStart("final_price")
		encodeDecimal(e, it.FinalPrice)
		e.FieldStart("user_coupon_id")
		encodeOptID(e, it.UserCouponID)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// readDelivery decodes {"delivery_date": "YYYY-MM-DD", "delivery_slot": "..."}.
// When reservation is not nil, "is_reservation" is accepted as well.
func readDelivery(w http.ResponseWriter, r *http.Request, reservation *bool) (order.DeliveryUpdate, error) {
	var u order.DeliveryUpdate
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "delivery_date":
			u.Date, err = optDate(d)
		case "delivery_slot":
			var s string
			s, err = optStr(d)
			u.Slot = order.Slot(s)
		case "is_reservation":
			if reservation == nil {
				return d.Skip()
			}
			*reservation, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return u, err
}

// ownOrder loads the order and checks that the caller may act on it.
// Admins may act on any order.
func (h *Handler) ownOrder(r *http.Request) (*order.Order, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return nil, err
	}
	o, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if p := principal(r); o.ConsumerID != p.ConsumerID && !p.IsAdmin() {
		return nil, order.ErrForbidden
	}
	return o, nil
}

// POST /api/orders
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var reservation bool
	u, err := readDelivery(w, r, &reservation)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		ConsumerID:    principal(r).ConsumerID,
		DeliveryDate:  u.Date,
		DeliverySlot:  u.Slot,
		IsReservation: reservation,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order_id")
		e.Int64(id)
		e.ObjEnd()
	})
}

// GET /api/orders/my
func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListOrders(r.Context(), principal(r).ConsumerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeOrder(e, &list[i])
		}
		e.ArrEnd()
	})
}

// GET /api/orders/{orderID}
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PATCH /api/orders/{orderID}/delivery
func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := readDelivery(w, r, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.UpdateDeliveryInfo(r.Context(), o.ID, u); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /api/orders/{orderID}/cancel
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.Cancel(r.Context(), o.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /api/orders/{orderID}/complete
func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := readDelivery(w, r, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.orders.Complete(r.Context(), order.CompleteRequest{
		OrderID:    orderID,
		ConsumerID: principal(r).ConsumerID,
		Delivery:   u,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
