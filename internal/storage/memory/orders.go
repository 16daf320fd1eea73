package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/hashicorp/go-memdb"

	"github.com/xenking/freshcart/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

// Orders implements order.Repository. Items are stored inside the order
// record.
type Orders struct{ s *Store }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		o.ID = r.s.nextID(tableOrders)
		for i := range o.Items {
			o.Items[i].ID = r.s.nextID(seqOrderItems)
			o.Items[i].OrderID = o.ID
		}
		stored := *o
		stored.Items = slices.Clone(o.Items)
		return insert(t, tableOrders, stored)
	})
}

func (r *Orders) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var o *order.Order
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		o, err = first[order.Order](t, tableOrders, "id", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (r *Orders) ListByConsumer(ctx context.Context, consumerID int64) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(ctx, func(t *memdb.Txn) (err error) {
		out, err = all[order.Order](t, tableOrders, "consumer", consumerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = slices.Clone(out[i].Items)
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r *Orders) Save(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func(t *memdb.Txn) error {
		existing, err := first[order.Order](t, tableOrders, "id", o.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return order.ErrNotFound
		}
		existing.Status = o.Status
		existing.DeliveryDate = o.DeliveryDate
		existing.DeliverySlot = o.DeliverySlot
		return insert(t, tableOrders, *existing)
	})
}
