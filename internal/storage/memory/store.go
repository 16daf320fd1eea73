// Package memory is a transactional in-process storage backend built on
// go-memdb. It implements every domain repository and txn.Manager, and is used
// for local development and service tests.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
)

const (
	tableCategories  = "categories"
	tableProducts    = "products"
	tableConsumers   = "consumers"
	tableAPIKeys     = "api_keys"
	tableCoupons     = "coupons"
	tableUserCoupons = "user_coupons"
	tableCarts       = "carts"
	tableCartItems   = "cart_items"
	tableOrders      = "orders"

	// seqOrderItems numbers order items, which live inside order records.
	seqOrderItems = "order_items"
)

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}}
}

func intIndex(name, field string, unique bool) *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: name, Unique: unique, Indexer: &memdb.IntFieldIndex{Field: field}}
}

func schema() *memdb.DBSchema {
	table := func(name string, extra ...*memdb.IndexSchema) *memdb.TableSchema {
		t := &memdb.TableSchema{Name: name, Indexes: map[string]*memdb.IndexSchema{"id": idIndex()}}
		for _, idx := range extra {
			t.Indexes[idx.Name] = idx
		}
		return t
	}
	tables := []*memdb.TableSchema{
		table(tableCategories),
		table(tableProducts),
		table(tableConsumers),
		table(tableAPIKeys, &memdb.IndexSchema{Name: "hash", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "KeyHash"}}),
		table(tableCoupons, &memdb.IndexSchema{Name: "code", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Code"}}),
		table(tableUserCoupons, intIndex("consumer", "ConsumerID", false)),
		table(tableCarts, intIndex("consumer", "ConsumerID", true)),
		table(tableCartItems, intIndex("cart", "CartID", false)),
		table(tableOrders, intIndex("consumer", "ConsumerID", false)),
	}
	s := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(tables))}
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

// Store holds all tables. The zero value is not usable; call New.
type Store struct {
	db  *memdb.MemDB
	seq map[string]*atomic.Int64
}

// New creates an empty Store.
func New() (*Store, error) {
	sc := schema()
	db, err := memdb.NewMemDB(sc)
	if err != nil {
		return nil, fmt.Errorf("creating memdb: %w", err)
	}
	seq := make(map[string]*atomic.Int64, len(sc.Tables))
	for name := range sc.Tables {
		seq[name] = new(atomic.Int64)
	}
	seq[seqOrderItems] = new(atomic.Int64)
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) nextID(table string) int64 {
	return s.seq[table].Add(1)
}

type txKey struct{}

func txFrom(ctx context.Context) *memdb.Txn {
	t, _ := ctx.Value(txKey{}).(*memdb.Txn)
	return t
}

// InTx implements txn.Manager. go-memdb allows one writer at a time, so
// transactions are serialized.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	t := s.db.Txn(true)
	defer t.Abort()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	t.Commit()
	return nil
}

// read runs fn against the context transaction or a fresh snapshot.
func (s *Store) read(ctx context.Context, fn func(t *memdb.Txn) error) error {
	if t := txFrom(ctx); t != nil {
		return fn(t)
	}
	t := s.db.Txn(false)
	defer t.Abort()
	return fn(t)
}

// write runs fn against the context transaction or its own short transaction.
func (s *Store) write(ctx context.Context, fn func(t *memdb.Txn) error) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		return fn(txFrom(ctx))
	})
}

func first[T any](t *memdb.Txn, table, index string, args ...any) (*T, error) {
	raw, err := t.First(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	if raw == nil {
		return nil, nil
	}
	v := *raw.(*T)
	return &v, nil
}

func all[T any](t *memdb.Txn, table, index string, args ...any) ([]T, error) {
	it, err := t.Get(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	var out []T
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*T))
	}
	return out, nil
}

func insert[T any](t *memdb.Txn, table string, v T) error {
	if err := t.Insert(table, &v); err != nil {
		return fmt.Errorf("writing %s: %w", table, err)
	}
	return nil
}
