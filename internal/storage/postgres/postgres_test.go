//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/storage/postgres"
)

var databaseURL string

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fresh",
				"POSTGRES_PASSWORD": "fresh",
				"POSTGRES_DB":       "fresh",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}
	databaseURL = fmt.Sprintf("postgres://fresh:fresh@%s:%s/fresh?sslmode=disable", host, port.Port())

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Migrations are idempotent.
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate twice: %v", err)
	}

	return m.Run()
}

type env struct {
	store  *postgres.Store
	carts  *cart.Service
	orders *order.Service

	fruit  product.Category
	apples product.Product
	alice  consumer.Consumer
}

// newEnv seeds a fresh catalog. Names are suffixed so tests share one database.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgres.New(pool)
	suffix := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())

	e := &env{
		store: store,
		fruit: product.Category{Name: "Fruit " + suffix},
		alice: consumer.Consumer{Email: "alice+" + suffix + "@example.com", Nickname: "alice", Role: consumer.RoleUser},
	}
	require.NoError(t, store.AddCategory(ctx, &e.fruit))
	e.apples = product.Product{Name: "Apples", Price: decimal.NewFromInt(10000), Category: e.fruit, Weight: "1kg"}
	require.NoError(t, store.AddProduct(ctx, &e.apples))
	require.NoError(t, store.AddConsumer(ctx, &e.alice))

	e.carts = cart.NewService(store.Carts(), store.Products(), store.Coupons(), store)
	e.orders = order.NewService(store.Orders(), store.Carts(), store.Coupons(), store.Consumers(), order.LogPublisher{}, store)
	return e
}

func (e *env) issue(t *testing.T, code, value string) int64 {
	t.Helper()
	ctx := context.Background()
	c := coupon.Coupon{
		Code:           code + fmt.Sprint(time.Now().UnixNano()),
		Name:           code,
		DiscountValue:  value,
		MinOrderAmount: "0",
		IsActive:       true,
		CategoryIDs:    []int64{e.fruit.ID},
	}
	require.NoError(t, e.store.Coupons().Create(ctx, &c))
	_, err := e.store.Coupons().IssueToConsumer(ctx, e.alice.ID, []int64{c.ID})
	require.NoError(t, err)

	held, err := e.store.Coupons().ListUserCoupons(ctx, e.alice.ID)
	require.NoError(t, err)
	for _, uc := range held {
		if uc.CouponID == c.ID {
			require.NotNil(t, uc.Coupon)
			assert.Equal(t, []int64{e.fruit.ID}, uc.Coupon.CategoryIDs)
			return uc.ID
		}
	}
	t.Fatalf("coupon %s not issued", code)
	return 0
}

func TestCheckout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	item, err := e.carts.AddProduct(ctx, e.alice.ID, e.apples.ID, 2)
	require.NoError(t, err)
	ucID := e.issue(t, "FRUIT15", "15")
	require.NoError(t, e.carts.ToggleCoupon(ctx, item.ID, ucID, e.alice.ID))

	id, err := e.orders.CreateOrder(ctx, order.CreateOrderRequest{ConsumerID: e.alice.ID})
	require.NoError(t, err)

	o, err := e.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20000).Equal(o.TotalPrice), "total %s", o.TotalPrice)
	assert.True(t, decimal.NewFromInt(17000).Equal(o.FinalCost), "final %s", o.FinalCost)
	require.Len(t, o.Items, 1)
	assert.Equal(t, ucID, o.Items[0].UserCouponID)

	uc, err := e.store.Coupons().GetUserCoupon(ctx, ucID)
	require.NoError(t, err)
	assert.True(t, uc.IsUsed)
	assert.Equal(t, id, uc.OrderID)

	c, err := e.carts.Get(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	require.NoError(t, e.orders.Cancel(ctx, id))
	uc, err = e.store.Coupons().GetUserCoupon(ctx, ucID)
	require.NoError(t, err)
	assert.False(t, uc.IsUsed)
	assert.Zero(t, uc.OrderID)
}

func TestCreateOrder_RollsBackOnIneligibleCoupon(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	item, err := e.carts.AddProduct(ctx, e.alice.ID, e.apples.ID, 1)
	require.NoError(t, err)
	ucID := e.issue(t, "FRUIT10", "10")
	require.NoError(t, e.carts.ToggleCoupon(ctx, item.ID, ucID, e.alice.ID))

	uc, err := e.store.Coupons().GetUserCoupon(ctx, ucID)
	require.NoError(t, err)
	require.NoError(t, e.store.Coupons().SetActive(ctx, uc.CouponID, false))

	_, err = e.orders.CreateOrder(ctx, order.CreateOrderRequest{ConsumerID: e.alice.ID})
	require.ErrorIs(t, err, coupon.ErrInactive)

	orders, err := e.orders.ListOrders(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	c, err := e.carts.Get(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}

func TestCreateOrder_ConcurrentCheckoutsConsumeCouponOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	item, err := e.carts.AddProduct(ctx, e.alice.ID, e.apples.ID, 1)
	require.NoError(t, err)
	ucID := e.issue(t, "ONCE", "10")
	require.NoError(t, e.carts.ToggleCoupon(ctx, item.ID, ucID, e.alice.ID))

	const workers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orders.CreateOrder(ctx, order.CreateOrderRequest{ConsumerID: e.alice.ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range errs {
		assert.True(t, errors.Is(err, order.ErrEmptyCart), "unexpected error: %v", err)
	}

	orders, err := e.orders.ListOrders(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCoupons_DuplicateCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	code := fmt.Sprintf("DUP%d", time.Now().UnixNano())
	first := coupon.Coupon{Code: code, Name: "dup", DiscountValue: "5", MinOrderAmount: "0", IsActive: true}
	require.NoError(t, e.store.Coupons().Create(ctx, &first))

	exists, err := e.store.Coupons().ExistsCode(ctx, code)
	require.NoError(t, err)
	assert.True(t, exists)

	second := first
	second.ID = 0
	require.ErrorIs(t, e.store.Coupons().Create(ctx, &second), coupon.ErrDuplicateCode)

	got, err := e.store.Coupons().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DiscountType, "untyped coupons stay untyped")
	assert.Empty(t, got.CategoryIDs)
}

func TestStore_InTxRollback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var c product.Category
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		c = product.Category{Name: fmt.Sprintf("Ghost %d", time.Now().UnixNano())}
		require.NoError(t, e.store.AddCategory(ctx, &c))
		return boom
	})
	require.ErrorIs(t, err, boom)

	cats, err := e.store.Products().ListCategories(ctx)
	require.NoError(t, err)
	for _, got := range cats {
		assert.NotEqual(t, c.Name, got.Name)
	}
}
