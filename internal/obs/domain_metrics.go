package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersPlacedTotal counts place-order outcomes per channel.
	OrdersPlacedTotal *prometheus.CounterVec
	// OrderTransitionsTotal counts order status transitions.
	OrderTransitionsTotal *prometheus.CounterVec
	// StockWritesTotal counts stock ledger writes by entry kind and outcome.
	StockWritesTotal *prometheus.CounterVec
	// ReservationSweepsTotal counts sweeper runs.
	ReservationSweepsTotal prometheus.Counter
	// ReservationsSweptTotal counts reservations removed by the sweeper.
	ReservationsSweptTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers the canteen domain
// collectors. Safe to call more than once.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of place-order outcomes by channel and result.",
		}, []string{"channel", "result"})
		OrderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Count of order status transitions by target state.",
		}, []string{"to"})
		StockWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_writes_total",
			Help:      "Count of stock ledger writes by entry kind and result.",
		}, []string{"kind", "result"})
		ReservationSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_sweeps_total",
			Help:      "Number of reservation sweeper runs.",
		})
		ReservationsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_swept_total",
			Help:      "Number of expired reservations removed by the sweeper.",
		})

		mustRegisterCollector(reg, OrdersPlacedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersPlacedTotal = v
			}
		})
		mustRegisterCollector(reg, OrderTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, StockWritesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockWritesTotal = v
			}
		})
		mustRegisterCollector(reg, ReservationSweepsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReservationSweepsTotal = v
			}
		})
		mustRegisterCollector(reg, ReservationsSweptTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReservationsSweptTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
