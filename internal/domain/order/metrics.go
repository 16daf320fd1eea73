package order

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	created         metric.Int64Counter
	cancelled       metric.Int64Counter
	completed       metric.Int64Counter
	couponsUsed     metric.Int64Counter
	couponsRestored metric.Int64Counter
	publishFailures metric.Int64Counter
}

func newMetrics(m metric.Meter) *metrics {
	return &metrics{
		created:         counter(m, "freshcart.orders.created", "Orders created"),
		cancelled:       counter(m, "freshcart.orders.cancelled", "Orders cancelled"),
		completed:       counter(m, "freshcart.orders.completed", "Orders completed"),
		couponsUsed:     counter(m, "freshcart.coupons.used", "User coupons consumed by orders"),
		couponsRestored: counter(m, "freshcart.coupons.restored", "User coupons returned by cancellations"),
		publishFailures: counter(m, "freshcart.events.publish_failures", "Order events that could not be published"),
	}
}

// counter falls back to a no-op instrument so a broken meter never blocks
// order processing.
func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
