// Package metrics exposes Prometheus counters for the settlement flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SettlementsTotal  *prometheus.CounterVec
	SettlementAmount  *prometheus.CounterVec
	SettlementLatency *prometheus.HistogramVec
}

// New registers the settlement metrics on the default registry.
func New() *Metrics {
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teranga",
		Subsystem: "pos",
		Name:      "settlements_total",
		Help:      "Total number of settled orders.",
	}, []string{"kind"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teranga",
		Subsystem: "pos",
		Name:      "settlement_amount_minor_units_total",
		Help:      "Settled revenue in minor currency units.",
	}, []string{"kind"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teranga",
		Subsystem: "pos",
		Name:      "settlement_duration_ms",
		Help:      "Settlement transaction latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"kind"})

	prometheus.MustRegister(settlements, amount, latency)
	return &Metrics{SettlementsTotal: settlements, SettlementAmount: amount, SettlementLatency: latency}
}

// ObserveSettlement records one settled order.
func (m *Metrics) ObserveSettlement(kind string, totalAmount int64, elapsed time.Duration) {
	m.SettlementsTotal.WithLabelValues(kind).Inc()
	m.SettlementAmount.WithLabelValues(kind).Add(float64(totalAmount))
	m.SettlementLatency.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
