package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/db"
	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/cart"
	"github.com/xenking/freshcart/internal/domain/consumer"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/domain/txn"
	"github.com/xenking/freshcart/internal/seed"
	"github.com/xenking/freshcart/internal/storage/memory"
	"github.com/xenking/freshcart/internal/storage/postgres"
	"github.com/xenking/freshcart/pkg/health"
)

// backend is the set of repositories behind the services, whichever store
// provides them.
type backend struct {
	tx        txn.Manager
	products  product.Repository
	carts     cart.Repository
	coupons   coupon.Repository
	orders    order.Repository
	consumers consumer.Repository
	apikeys   auth.Repository

	// ping is nil for the in-memory store.
	ping  health.Pinger
	close func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(ctx, lg, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	st := postgres.New(pool)
	return &backend{
		tx:        st,
		products:  st.Products(),
		carts:     st.Carts(),
		coupons:   st.Coupons(),
		orders:    st.Orders(),
		consumers: st.Consumers(),
		apikeys:   st.APIKeys(),
		ping:      pool,
		close:     pool.Close,
	}, nil
}

// openMemory starts an empty in-memory store and loads the demo catalog.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	st, err := memory.New()
	if err != nil {
		return nil, errors.Wrap(err, "create memory store")
	}

	cat, err := seed.Parse(db.Catalog)
	if err != nil {
		return nil, err
	}
	res, err := seed.Load(ctx, st, coupon.NewService(st.Coupons(), st.Products(), st), cat, []byte(cfg.APIKeyPepper))
	if err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	lg.Warn("Using in-memory storage with demo catalog, data is lost on exit",
		zap.Int("products", res.Products),
		zap.Int("consumers", res.Consumers),
		zap.Int("coupons", res.Coupons),
	)

	return &backend{
		tx:        st,
		products:  st.Products(),
		carts:     st.Carts(),
		coupons:   st.Coupons(),
		orders:    st.Orders(),
		consumers: st.Consumers(),
		apikeys:   st.APIKeys(),
		close:     func() {},
	}, nil
}
