package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		capacity    uint
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "expected-codes", 1_000_000, "expected number of distinct coupon codes, sizes the bloom filter")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: coupon-ingest [flags] file.csv.gz...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, capacity); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, files []string, capacity uint) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st := postgres.New(pool)
	categories, err := st.Products().ListCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}

	in, err := newIngester(ctx, st.Coupons(), coupon.NewService(st.Coupons(), st.Products(), st), categories, capacity)
	if err != nil {
		return err
	}
	stats, err := in.Run(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("coupon ingest completed successfully",
		slog.Int("created", stats.Created),
		slog.Int("issued", stats.Issued),
		slog.Int("skipped", stats.Skipped),
		slog.Int("rejected", stats.Rejected),
		slog.Int("bloom_false_positives", stats.FalsePositives),
	)
	return nil
}
