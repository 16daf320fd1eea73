// Package handler exposes the cart, coupon and order services over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
)

// APIKeyHeader carries the consumer's API key.
const APIKeyHeader = "api_key"

// Handler serves the /api routes.
type Handler struct {
	carts   *cart.Service
	coupons *coupon.Service
	orders  *order.Service
	authn   *auth.Authenticator
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(
	carts *cart.Service,
	coupons *coupon.Service,
	orders *order.Service,
	authn *auth.Authenticator,
) *Handler {
	return &Handler{
		carts:   carts,
		coupons: coupons,
		orders:  orders,
		authn:   authn,
	}
}

// Routes builds the router. Middlewares run after authentication, so they
// can rely on the request principal.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Use(middlewares...)

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", h.listCoupons)
			r.With(requireAdmin).Post("/", h.registerCoupon)
			r.Get("/my", h.myCoupons)
			r.Get("/applicable/{productID}", h.applicableCoupons)
			r.Patch("/cart-items/{itemID}", h.toggleCoupon)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Get("/detail", h.cartDetail)
			r.Post("/items", h.addCartItem)
			r.Patch("/items/{productID}", h.updateCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/my", h.myOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Patch("/{orderID}/delivery", h.updateDelivery)
			r.Patch("/{orderID}/cancel", h.cancelOrder)
			r.Patch("/{orderID}/complete", h.completeOrder)
		})
	})
	return r
}

// authenticate resolves the api_key header to a principal.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authn.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin() {
			writeError(w, r, errAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// ConsumerKey is a rate limit key function keyed by the authenticated
// consumer.
func ConsumerKey(r *http.Request) string {
	return "consumer:" + strconv.FormatInt(principal(r).ConsumerID, 10)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidRequest("bad " + name)
	}
	return id, nil
}
