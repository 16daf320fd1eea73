package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/freshcart/db"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/seed"
	"github.com/xenking/freshcart/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL  string
		catalogFile  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (defaults to the embedded demo catalog)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FRESH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("FRESH_API_KEY_PEPPER")
	}
	if apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or FRESH_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, catalogFile, pepper string) error {
	data := db.Catalog
	if catalogFile != "" {
		slog.Info("reading catalog file", slog.String("path", catalogFile))
		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog file")
		}
	}
	cat, err := seed.Parse(data)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st := postgres.New(pool)
	existing, err := st.Products().ListCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	if len(existing) > 0 {
		slog.Info("database already seeded, skipping", slog.Int("categories", len(existing)))
		return nil
	}

	res, err := seed.Load(ctx, st, coupon.NewService(st.Coupons(), st.Products(), st), cat, []byte(pepper))
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("seed completed successfully",
		slog.Int("categories", res.Categories),
		slog.Int("products", res.Products),
		slog.Int("consumers", res.Consumers),
		slog.Int("coupons", res.Coupons),
		slog.Int("issued", res.Issued),
	)
	return nil
}
