package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/freshcart/internal/domain/apperr"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/product"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// Columns of an import row. Categories are category names separated by '|'.
const (
	colCode = iota
	colName
	colType
	colValue
	colMinimum
	colCategories
	numColumns
)

type codeStore interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
	ExistsCode(ctx context.Context, code string) (bool, error)
}

type registrar interface {
	Register(ctx context.Context, req coupon.RegisterRequest) (*coupon.RegisterResult, error)
}

// Stats summarizes an import.
type Stats struct {
	Created        int
	Issued         int
	Skipped        int
	Rejected       int
	FalsePositives int
}

type record struct {
	file string
	line int
	req  coupon.RegisterRequest
}

// ingester registers coupons from gzip CSV files. Codes already stored are
// tracked in a bloom filter so most duplicates skip the database; a filter
// hit is confirmed with ExistsCode before skipping.
type ingester struct {
	codes      codeStore
	coupons    registrar
	categories map[string]int64
	seen       *bloom.BloomFilter
	stats      Stats
}

func newIngester(
	ctx context.Context,
	codes codeStore,
	coupons registrar,
	categories []product.Category,
	capacity uint,
) (*ingester, error) {
	existing, err := codes.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list existing coupons")
	}
	if n := uint(len(existing)); capacity < n {
		capacity = n
	}

	in := &ingester{
		codes:      codes,
		coupons:    coupons,
		categories: make(map[string]int64, len(categories)),
		seen:       bloom.NewWithEstimates(max(capacity, 1), bloomFPR),
	}
	for _, c := range categories {
		in.categories[strings.ToLower(c.Name)] = c.ID
	}
	for _, c := range existing {
		in.seen.AddString(c.Code)
	}
	slog.Info("bloom filter preloaded", slog.Int("codes", len(existing)))
	return in, nil
}

// Run reads every file concurrently and registers the records one by one.
func (in *ingester) Run(ctx context.Context, files []string) (Stats, error) {
	records := make(chan record, 1024)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		readers, ctx := errgroup.WithContext(ctx)
		for _, f := range files {
			readers.Go(func() error {
				return in.read(ctx, f, records)
			})
		}
		return readers.Wait()
	})
	g.Go(func() error {
		for r := range records {
			if err := in.write(ctx, r); err != nil {
				return err
			}
			if total := in.stats.Created + in.stats.Skipped + in.stats.Rejected; total%progressEvery == 0 {
				slog.Info("ingest progress", slog.Int("records", total), slog.Int("created", in.stats.Created))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return in.stats, err
	}
	return in.stats, nil
}

func (in *ingester) read(ctx context.Context, path string, out chan<- record) error {
	var rejected int
	err := streamGzCSV(ctx, path, func(line int, row []string) error {
		req, err := in.parse(row)
		if err != nil {
			rejected++
			slog.Warn("skipping malformed row",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			return nil
		}
		select {
		case out <- record{file: path, line: line, req: req}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	slog.Info("file read", slog.String("file", path), slog.Int("malformed", rejected))
	return nil
}

// parse maps a CSV row to a registration request. Type and minimum may be
// empty; the coupon service infers or defaults them.
func (in *ingester) parse(row []string) (coupon.RegisterRequest, error) {
	if len(row) < numColumns {
		return coupon.RegisterRequest{}, errors.Errorf("want %d columns, got %d", numColumns, len(row))
	}
	req := coupon.RegisterRequest{
		Code:           strings.ToUpper(strings.TrimSpace(row[colCode])),
		Name:           strings.TrimSpace(row[colName]),
		DiscountType:   coupon.DiscountType(strings.ToUpper(strings.TrimSpace(row[colType]))),
		DiscountValue:  strings.TrimSpace(row[colValue]),
		MinOrderAmount: strings.TrimSpace(row[colMinimum]),
		IsActive:       true,
	}
	if req.Code == "" {
		return req, errors.New("empty code")
	}
	for _, name := range strings.Split(row[colCategories], "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := in.categories[strings.ToLower(name)]
		if !ok {
			return req, errors.Errorf("unknown category %q", name)
		}
		req.CategoryIDs = append(req.CategoryIDs, id)
	}
	return req, nil
}

func (in *ingester) write(ctx context.Context, r record) error {
	code := r.req.Code
	if in.seen.TestString(code) {
		exists, err := in.codes.ExistsCode(ctx, code)
		if err != nil {
			return errors.Wrapf(err, "check code %s", code)
		}
		if exists {
			in.stats.Skipped++
			return nil
		}
		in.stats.FalsePositives++
	}

	res, err := in.coupons.Register(ctx, r.req)
	switch {
	case errors.Is(err, coupon.ErrDuplicateCode):
		in.stats.Skipped++
	case apperr.KindOf(err) == apperr.KindInvalidInput, apperr.KindOf(err) == apperr.KindNotFound:
		in.stats.Rejected++
		slog.Warn("coupon rejected",
			slog.String("code", code),
			slog.String("file", r.file),
			slog.Int("line", r.line),
			slog.String("error", err.Error()),
		)
		return nil
	case err != nil:
		return errors.Wrapf(err, "register %s (%s:%d)", code, r.file, r.line)
	default:
		in.stats.Created++
		in.stats.Issued += res.Issued
	}
	in.seen.AddString(code)
	return nil
}

// streamGzCSV opens a gzip-compressed CSV file and calls fn for each row.
// A leading header row starting with "code" is skipped.
func streamGzCSV(ctx context.Context, path string, fn func(line int, row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.ReuseRecord = true

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
		if first && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "code") {
			continue
		}
		line, _ := r.FieldPos(0)
		if err := fn(line, row); err != nil {
			return err
		}
	}
}
