// Package metrics exposes Prometheus collectors for slip activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/betslip/internal/domain"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Mutations           *prometheus.CounterVec
	Validations         *prometheus.CounterVec
	PriceChanges        prometheus.Counter
	Shares              *prometheus.CounterVec
	MatchInfoFetches    *prometheus.CounterVec
	Selections          prometheus.Gauge
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betslip_mutations_total",
				Help: "Slip mutations by operation",
			},
			[]string{"op"},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betslip_validations_total",
				Help: "Validation rounds by outcome",
			},
			[]string{"outcome"},
		),
		PriceChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "betslip_price_changes_applied_total",
				Help: "Confirmed price changes written into the slip",
			},
		),
		Shares: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betslip_share_total",
				Help: "Share, redeem and import calls by resulting slip status",
			},
			[]string{"op", "status"},
		),
		MatchInfoFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betslip_matchinfo_fetch_total",
				Help: "Per-fixture match info fetches by result",
			},
			[]string{"result"},
		),
		Selections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "betslip_selections",
				Help: "Selections currently in the slip",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betslip_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betslip_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.Mutations,
		m.Validations,
		m.PriceChanges,
		m.Shares,
		m.MatchInfoFetches,
		m.Selections,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSlip is a store observer. It counts the mutation and tracks the
// selection count.
func (m *Metrics) ObserveSlip(c domain.SlipChange) {
	m.Mutations.WithLabelValues(string(c.Kind)).Inc()
	m.Selections.Set(float64(len(c.Snapshot.Selections)))
}

// Validation counts one validation round.
func (m *Metrics) Validation(outcome string) {
	m.Validations.WithLabelValues(outcome).Inc()
}

// PriceChangesApplied adds n confirmed price changes.
func (m *Metrics) PriceChangesApplied(n int) {
	m.PriceChanges.Add(float64(n))
}

// ShareOutcome counts one sharing call.
func (m *Metrics) ShareOutcome(op string, status domain.SlipStatus) {
	m.Shares.WithLabelValues(op, string(status)).Inc()
}

// MatchInfoFetch counts one fixture fetch.
func (m *Metrics) MatchInfoFetch(result string) {
	m.MatchInfoFetches.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
