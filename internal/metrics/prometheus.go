package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bp_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	cyclesStarted := newCounter("cycles_started_total", "Total number of hedge cycles started.")
	cyclesCompleted := newCounter("cycles_completed_total", "Total number of hedge cycles that reached the sweep phase.")
	cyclesFailed := newCounter("cycles_failed_total", "Total number of hedge cycles that failed before completion.")
	ordersPlaced := newCounter("orders_placed_total", "Total number of orders placed.")
	ordersFailed := newCounter("orders_failed_total", "Total number of order placement failures.")
	shortUnwinds := newCounter("short_unwinds_total", "Total number of unhedged short legs actively flattened.")
	sweepsSubmitted := newCounter("sweeps_submitted_total", "Total number of sweep withdrawals submitted.")
	depositsSubmitted := newCounter("deposits_submitted_total", "Total number of treasury deposits submitted.")
	orderUpdates := newCounter("order_updates_total", "Total number of order update stream events consumed.")

	m := &Metrics{
		CyclesStarted:     promCounter{cyclesStarted},
		CyclesCompleted:   promCounter{cyclesCompleted},
		CyclesFailed:      promCounter{cyclesFailed},
		OrdersPlaced:      promCounter{ordersPlaced},
		OrdersFailed:      promCounter{ordersFailed},
		ShortUnwinds:      promCounter{shortUnwinds},
		SweepsSubmitted:   promCounter{sweepsSubmitted},
		DepositsSubmitted: promCounter{depositsSubmitted},
		OrderUpdates:      promCounter{orderUpdates},
	}

	return &Prometheus{
		Metrics:  m,
		registry: registry,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
