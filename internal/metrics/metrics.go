package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	authRejected    prometheus.Counter
	tableGeneration prometheus.Gauge
	routesInstalled prometheus.Gauge
}

// New creates a metrics set on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Proxied requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests denied by the rate limiter, by route.",
		}, []string{"route"}),
		authRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_auth_rejected_total",
			Help: "Requests rejected by the auth filter.",
		}),
		tableGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_route_table_generation",
			Help: "Current route table generation.",
		}),
		routesInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_routes_installed",
			Help: "Number of installed routes.",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
		m.authRejected,
		m.tableGeneration,
		m.routesInstalled,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RateLimited counts one rate-limiter denial.
func (m *Metrics) RateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

// AuthRejected counts one auth rejection.
func (m *Metrics) AuthRejected() {
	m.authRejected.Inc()
}

// TableRefreshed records the published generation and route count.
func (m *Metrics) TableRefreshed(generation uint64, routes int) {
	m.tableGeneration.Set(float64(generation))
	m.routesInstalled.Set(float64(routes))
}
