package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/freshcart/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

const orderColumns = `id, consumer_id, created_at, status, is_reservation, delivery_date,
	delivery_slot, total_price, final_cost`

const orderItemColumns = `id, order_id, product_id, product_name, quantity, unit_price,
	line_price, discount, final_price, user_coupon_id`

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.ConsumerID, &o.CreatedAt, &o.Status, &o.IsReservation, &o.DeliveryDate,
		&o.DeliverySlot, &o.TotalPrice, &o.FinalCost)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it   order.Item
		ucID *int64
	)
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
		&it.LinePrice, &it.Discount, &it.FinalPrice, &ucID)
	if ucID != nil {
		it.UserCouponID = *ucID
	}
	return it, err
}

// Orders implements order.Repository. Items live in order_items.
type Orders struct{ s *Store }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Create inserts the order and its items with a single batch inside the
// caller's transaction.
func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	return r.s.InTx(ctx, func(ctx context.Context) error {
		err := r.s.q(ctx).QueryRow(ctx,
			`INSERT INTO orders (consumer_id, created_at, status, is_reservation, delivery_date,
				delivery_slot, total_price, final_cost)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			o.ConsumerID, o.CreatedAt, o.Status, o.IsReservation, o.DeliveryDate,
			o.DeliverySlot, o.TotalPrice, o.FinalCost,
		).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		tx, ok := r.s.q(ctx).(pgx.Tx)
		if !ok {
			return errors.New("order items require a transaction")
		}
		batch := &pgx.Batch{}
		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			batch.Queue(
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price,
					line_price, discount, final_price, user_coupon_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice,
				it.LinePrice, it.Discount, it.FinalPrice, nullID(it.UserCouponID),
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&it.ID)
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting order items: %w", err)
		}
		return nil
	})
}

func (r *Orders) items(ctx context.Context, orderIDs []int64) (map[int64][]order.Item, error) {
	rows, err := r.s.q(ctx).Query(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning order items: %w", err)
	}
	out := make(map[int64][]order.Item, len(orderIDs))
	for _, it := range list {
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, nil
}

// GetByID loads the order with its items. Inside a transaction the order row
// stays locked until commit.
func (r *Orders) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(r.s.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+forUpdate(ctx), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	items, err := r.items(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *Orders) ListByConsumer(ctx context.Context, consumerID int64) ([]order.Order, error) {
	rows, err := r.s.q(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE consumer_id = $1 ORDER BY created_at DESC, id DESC`,
		consumerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil || len(orders) == 0 {
		return orders, err
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *Orders) Save(ctx context.Context, o *order.Order) error {
	tag, err := r.s.q(ctx).Exec(ctx,
		`UPDATE orders SET status = $2, delivery_date = $3, delivery_slot = $4 WHERE id = $1`,
		o.ID, o.Status, o.DeliveryDate, o.DeliverySlot,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
