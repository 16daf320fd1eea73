package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/handler"
	"github.com/xenking/freshcart/internal/storage/memory"
)

var pepper = []byte("test-pepper")

type publisherStub struct {
	mu     sync.Mutex
	events []order.OrderConfirmed
}

func (p *publisherStub) PublishOrderConfirmed(_ context.Context, e order.OrderConfirmed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type server struct {
	routes    http.Handler
	publisher *publisherStub

	fruit  product.Category
	dairy  product.Category
	apples product.Product
	milk   product.Product
	alice  consumer.Consumer
}

func newServer(t *testing.T, middlewares ...func(http.Handler) http.Handler) *server {
	t.Helper()
	ctx := context.Background()

	store, err := memory.New()
	require.NoError(t, err)

	s := &server{
		publisher: &publisherStub{},
		fruit:     product.Category{Name: "Fruit"},
		dairy:     product.Category{Name: "Dairy"},
	}
	require.NoError(t, store.AddCategory(ctx, &s.fruit))
	require.NoError(t, store.AddCategory(ctx, &s.dairy))
	s.apples = product.Product{Name: "Apples", Price: decimal.NewFromInt(10000), Category: s.fruit, Weight: "1kg"}
	s.milk = product.Product{Name: "Milk", Price: decimal.NewFromInt(5000), Category: s.dairy, Weight: "1L"}
	require.NoError(t, store.AddProduct(ctx, &s.apples))
	require.NoError(t, store.AddProduct(ctx, &s.milk))

	for _, c := range []struct {
		nickname string
		role     consumer.Role
	}{
		{"alice", consumer.RoleUser},
		{"bob", consumer.RoleUser},
		{"admin", consumer.RoleAdmin},
	} {
		cons := consumer.Consumer{Email: c.nickname + "@example.com", Nickname: c.nickname, Role: c.role}
		require.NoError(t, store.AddConsumer(ctx, &cons))
		require.NoError(t, store.AddAPIKey(ctx, &auth.APIKeyInfo{
			KeyHash:    auth.HashKey(pepper, c.nickname+"-key"),
			Name:       c.nickname,
			ConsumerID: cons.ID,
			Role:       c.role,
		}))
		if c.nickname == "alice" {
			s.alice = cons
		}
	}

	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	h := handler.NewHandler(
		cart.NewService(store.Carts(), store.Products(), store.Coupons(), store),
		coupon.NewService(store.Coupons(), store.Products(), store),
		order.NewService(store.Orders(), store.Carts(), store.Coupons(), store.Consumers(), s.publisher, store,
			order.WithClock(func() time.Time { return now }),
			order.WithLocation(time.UTC),
			order.WithTracerProvider(tracenoop.NewTracerProvider()),
			order.WithMeterProvider(metricnoop.NewMeterProvider()),
		),
		auth.NewAuthenticator(store.APIKeys(), pepper),
	)
	s.routes = h.Routes(middlewares...)
	return s
}

func (s *server) do(t *testing.T, method, path, key, body string) (int, map[string]any) {
	t.Helper()
	code, raw := s.raw(t, method, path, key, body)
	if len(raw) == 0 {
		return code, nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return code, out
}

func (s *server) list(t *testing.T, path, key string) []map[string]any {
	t.Helper()
	code, raw := s.raw(t, http.MethodGet, path, key, "")
	require.Equal(t, http.StatusOK, code, "body: %s", raw)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (s *server) raw(t *testing.T, method, path, key, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

// registerFruitCoupon registers a 15% fruit coupon as admin.
func (s *server) registerFruitCoupon(t *testing.T) {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/coupons", "admin-key",
		fmt.Sprintf(`{"code":"FRUIT15","name":"Fruit 15","discount_value":15,"category_ids":[%d]}`, s.fruit.ID))
	require.Equal(t, http.StatusCreated, code, "body: %v", body)
}

func id(v any) int64 { return int64(v.(float64)) }

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "unknown key", key: "nope", want: http.StatusUnauthorized},
		{name: "valid key", key: "alice-key", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.raw(t, http.MethodGet, "/api/cart", tt.key, "")
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestRoutes_MiddlewareSeesPrincipal(t *testing.T) {
	var key string
	s := newServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key = handler.ConsumerKey(r)
			next.ServeHTTP(w, r)
		})
	})

	code, _ := s.raw(t, http.MethodGet, "/api/cart", "alice-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, fmt.Sprintf("consumer:%d", s.alice.ID), key)
}

func TestRegisterCoupon(t *testing.T) {
	s := newServer(t)
	payload := fmt.Sprintf(`{"code":"FRUIT15","name":"Fruit 15","discount_value":"15","category_ids":[%d]}`, s.fruit.ID)

	code, body := s.do(t, http.MethodPost, "/api/coupons", "alice-key", payload)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "admin_only", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/coupons", "admin-key", payload)
	require.Equal(t, http.StatusCreated, code, "body: %v", body)
	assert.Equal(t, float64(3), body["issued"])
	created := body["coupon"].(map[string]any)
	assert.Equal(t, "PERCENT", created["discount_type"])
	assert.Equal(t, []any{float64(s.fruit.ID)}, created["category_ids"])

	code, body = s.do(t, http.MethodPost, "/api/coupons", "admin-key", payload)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "coupon_duplicate_code", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/coupons", "admin-key", `{"code":"GHOST","name":"Ghost","discount_value":5,"category_ids":[999]}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "category_not_found", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/coupons", "admin-key",
		fmt.Sprintf(`{"code":"NONAME","discount_value":5,"category_ids":[%d]}`, s.fruit.ID))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "coupon_invalid_definition", body["code"])

	all := s.list(t, "/api/coupons", "alice-key")
	require.Len(t, all, 1)
	assert.Equal(t, "FRUIT15", all[0]["code"])
}

func TestCheckoutFlow(t *testing.T) {
	s := newServer(t)
	s.registerFruitCoupon(t)

	code, item := s.do(t, http.MethodPost, "/api/cart/items", "alice-key",
		fmt.Sprintf(`{"product_id":%d,"quantity":2}`, s.apples.ID))
	require.Equal(t, http.StatusCreated, code, "body: %v", item)
	assert.Equal(t, float64(2), item["quantity"])
	assert.Nil(t, item["user_coupon_id"])

	mine := s.list(t, "/api/coupons/my", "alice-key")
	require.Len(t, mine, 1)
	ucID := id(mine[0]["id"])

	applicable := s.list(t, fmt.Sprintf("/api/coupons/applicable/%d", s.apples.ID), "alice-key")
	require.Len(t, applicable, 1)
	assert.Equal(t, float64(1500), applicable[0]["discount"])
	assert.Empty(t, s.list(t, fmt.Sprintf("/api/coupons/applicable/%d", s.milk.ID), "alice-key"))

	code, _ = s.do(t, http.MethodPatch, fmt.Sprintf("/api/coupons/cart-items/%d", id(item["id"])), "alice-key",
		fmt.Sprintf(`{"user_coupon_id":%d}`, ucID))
	require.Equal(t, http.StatusNoContent, code)

	code, detail := s.do(t, http.MethodGet, "/api/cart/detail", "alice-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(20000), detail["total"])
	assert.Equal(t, float64(3000), detail["discount"])
	assert.Equal(t, float64(17000), detail["final_price"])
	lines := detail["items"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "FRUIT15", lines[0].(map[string]any)["coupon_code"])

	code, created := s.do(t, http.MethodPost, "/api/orders", "alice-key", "")
	require.Equal(t, http.StatusCreated, code, "body: %v", created)
	orderPath := fmt.Sprintf("/api/orders/%d", id(created["order_id"]))

	code, o := s.do(t, http.MethodGet, orderPath, "alice-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING", o["status"])
	assert.Equal(t, float64(17000), o["final_cost"])
	assert.Equal(t, float64(3000), o["discount"])

	code, _ = s.do(t, http.MethodGet, orderPath, "bob-key", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(t, http.MethodGet, orderPath, "admin-key", "")
	assert.Equal(t, http.StatusOK, code)

	assert.Empty(t, s.list(t, "/api/coupons/my", "alice-key"), "used coupon is not available")
	code, c := s.do(t, http.MethodGet, "/api/cart", "alice-key", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, c["items"])

	code, _ = s.do(t, http.MethodPatch, orderPath+"/complete", "alice-key",
		`{"delivery_date":"2025-06-16","delivery_slot":"MORNING"}`)
	require.Equal(t, http.StatusNoContent, code)
	require.Len(t, s.publisher.events, 1)
	assert.Equal(t, "alice@example.com", s.publisher.events[0].Email)

	orders := s.list(t, "/api/orders/my", "alice-key")
	require.Len(t, orders, 1)
	assert.Equal(t, "COMPLETED", orders[0]["status"])
	assert.Equal(t, "2025-06-16", orders[0]["delivery_date"])
	assert.Equal(t, "MORNING", orders[0]["delivery_slot"])

	code, _ = s.do(t, http.MethodPatch, orderPath+"/cancel", "alice-key", "")
	require.Equal(t, http.StatusNoContent, code)
	code, body := s.do(t, http.MethodPatch, orderPath+"/cancel", "alice-key", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "order_already_cancelled", body["code"])

	assert.Len(t, s.list(t, "/api/coupons/my", "alice-key"), 1, "cancel returns the coupon")
}

func TestToggleCoupon_Errors(t *testing.T) {
	s := newServer(t)
	s.registerFruitCoupon(t)

	_, milkItem := s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d}`, s.milk.ID))
	mine := s.list(t, "/api/coupons/my", "alice-key")
	require.Len(t, mine, 1)
	milkPath := fmt.Sprintf("/api/coupons/cart-items/%d", id(milkItem["id"]))

	tests := []struct {
		name string
		path string
		key  string
		body string
		want int
		code string
	}{
		{
			name: "category mismatch",
			path: milkPath,
			key:  "alice-key",
			body: fmt.Sprintf(`{"user_coupon_id":%d}`, id(mine[0]["id"])),
			want: http.StatusForbidden,
			code: "coupon_category_mismatch",
		},
		{
			name: "unknown user coupon",
			path: milkPath,
			key:  "alice-key",
			body: `{"user_coupon_id":999}`,
			want: http.StatusNotFound,
			code: "user_coupon_not_found",
		},
		{
			name: "unknown cart item",
			path: "/api/coupons/cart-items/999",
			key:  "alice-key",
			body: `{"user_coupon_id":null}`,
			want: http.StatusNotFound,
			code: "cart_item_not_found",
		},
		{
			name: "another consumer's line",
			path: milkPath,
			key:  "bob-key",
			body: `{"user_coupon_id":null}`,
			want: http.StatusForbidden,
			code: "cart_item_forbidden",
		},
		{
			name: "clear without coupon",
			path: milkPath,
			key:  "alice-key",
			body: `{"user_coupon_id":null}`,
			want: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPatch, tt.path, tt.key, tt.body)
			assert.Equal(t, tt.want, code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestBadRequests(t *testing.T) {
	s := newServer(t)
	_, _ = s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d}`, s.apples.ID))
	_, created := s.do(t, http.MethodPost, "/api/orders", "alice-key", "")
	orderPath := fmt.Sprintf("/api/orders/%d", id(created["order_id"]))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		code   string
	}{
		{name: "malformed json", method: http.MethodPost, path: "/api/cart/items", body: `{"product_id":`, want: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing product", method: http.MethodPost, path: "/api/cart/items", body: `{}`, want: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/items", body: `{"product_id":999}`, want: http.StatusNotFound, code: "product_not_found"},
		{name: "zero quantity", method: http.MethodPatch, path: fmt.Sprintf("/api/cart/items/%d", s.apples.ID), body: `{"quantity":0}`, want: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "bad path id", method: http.MethodGet, path: "/api/orders/abc", want: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing order", method: http.MethodGet, path: "/api/orders/999", want: http.StatusNotFound, code: "order_not_found"},
		{name: "empty cart", method: http.MethodPost, path: "/api/orders", body: `{}`, want: http.StatusBadRequest, code: "empty_cart"},
		{name: "bad date", method: http.MethodPatch, path: orderPath + "/delivery", body: `{"delivery_date":"16.06.2025","delivery_slot":"MORNING"}`, want: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown slot", method: http.MethodPatch, path: orderPath + "/delivery", body: `{"delivery_date":"2025-06-20","delivery_slot":"NIGHT"}`, want: http.StatusBadRequest, code: "invalid_delivery_slot"},
		{name: "complete today", method: http.MethodPatch, path: orderPath + "/complete", body: `{"delivery_date":"2025-06-15","delivery_slot":"EVENING"}`, want: http.StatusBadRequest, code: "invalid_delivery_date"},
		{name: "complete without slot", method: http.MethodPatch, path: orderPath + "/complete", body: `{"delivery_date":"2025-06-20"}`, want: http.StatusBadRequest, code: "missing_delivery"},
		{name: "unknown route", method: http.MethodGet, path: "/api/nope", want: http.StatusNotFound, code: "route_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.method, tt.path, "alice-key", tt.body)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestUpdateDelivery(t *testing.T) {
	s := newServer(t)
	_, _ = s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d}`, s.milk.ID))
	code, created := s.do(t, http.MethodPost, "/api/orders", "alice-key",
		`{"is_reservation":true,"delivery_date":"2025-06-18","delivery_slot":"AFTERNOON"}`)
	require.Equal(t, http.StatusCreated, code, "body: %v", created)
	orderPath := fmt.Sprintf("/api/orders/%d", id(created["order_id"]))

	_, o := s.do(t, http.MethodGet, orderPath, "alice-key", "")
	assert.Equal(t, true, o["is_reservation"])
	assert.Equal(t, "2025-06-18", o["delivery_date"])

	code, _ = s.do(t, http.MethodPatch, orderPath+"/delivery", "bob-key", `{"delivery_date":"2025-06-19","delivery_slot":"EVENING"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPatch, orderPath+"/delivery", "alice-key", `{"delivery_date":"2025-06-19","delivery_slot":"EVENING"}`)
	require.Equal(t, http.StatusNoContent, code)
	_, o = s.do(t, http.MethodGet, orderPath, "alice-key", "")
	assert.Equal(t, "2025-06-19", o["delivery_date"])
	assert.Equal(t, "EVENING", o["delivery_slot"])
}

func TestCartItems(t *testing.T) {
	s := newServer(t)
	itemPath := fmt.Sprintf("/api/cart/items/%d", s.apples.ID)

	_, _ = s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d,"quantity":1}`, s.apples.ID))
	code, item := s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d,"quantity":2}`, s.apples.ID))
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(3), item["quantity"])

	code, _ = s.do(t, http.MethodPatch, itemPath, "alice-key", `{"quantity":5}`)
	require.Equal(t, http.StatusNoContent, code)
	_, c := s.do(t, http.MethodGet, "/api/cart", "alice-key", "")
	items := c["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(5), items[0].(map[string]any)["quantity"])
	assert.Equal(t, float64(10000), items[0].(map[string]any)["unit_price"])

	code, _ = s.do(t, http.MethodDelete, itemPath, "alice-key", "")
	require.Equal(t, http.StatusNoContent, code)
	code, body := s.do(t, http.MethodDelete, itemPath, "alice-key", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "cart_item_not_found", body["code"])

	_, _ = s.do(t, http.MethodPost, "/api/cart/items", "alice-key", fmt.Sprintf(`{"product_id":%d}`, s.milk.ID))
	code, _ = s.do(t, http.MethodDelete, "/api/cart", "alice-key", "")
	require.Equal(t, http.StatusNoContent, code)
	_, c = s.do(t, http.MethodGet, "/api/cart", "alice-key", "")
	assert.Empty(t, c["items"])
}
