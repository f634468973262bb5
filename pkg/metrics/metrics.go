// Package metrics exposes ledger counters and gauges through Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PositionsOpened prometheus.Counter
	PositionsClosed prometheus.Counter
	Liquidations    prometheus.Counter
	RejectedOps     *prometheus.CounterVec

	FundingRate  prometheus.Gauge
	OpenInterest *prometheus.GaugeVec
}

// New creates and registers all instruments under the given namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_opened_total",
			Help:      "Total positions opened",
		}),
		PositionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Total positions closed by their owner",
		}),
		Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Total positions liquidated by keepers",
		}),
		RejectedOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Operations rejected, by reason",
		}, []string{"op", "reason"}),

		FundingRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funding_rate",
			Help:      "Last computed funding rate (1e18 = 100%)",
		}),
		OpenInterest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_interest",
			Help:      "Aggregate open interest by side",
		}, []string{"side"}),
	}

	registry.MustRegister(
		m.PositionsOpened,
		m.PositionsClosed,
		m.Liquidations,
		m.RejectedOps,
		m.FundingRate,
		m.OpenInterest,
	)

	return m
}

// SetMarket updates the funding-rate and open-interest gauges together.
func (m *Metrics) SetMarket(rate, longs, shorts uint64) {
	m.FundingRate.Set(float64(rate))
	m.OpenInterest.WithLabelValues("long").Set(float64(longs))
	m.OpenInterest.WithLabelValues("short").Set(float64(shorts))
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
