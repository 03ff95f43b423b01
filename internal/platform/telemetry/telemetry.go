// Package telemetry exposes Prometheus metrics for HTTP traffic, consultation
// outcomes, inference latency and the database pool.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fertility/cds/internal/platform/db"
)

const namespace = "cds"

// Metrics owns a registry and the collectors registered on it. Each instance
// is independent so tests can create their own.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	consultations     *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	panics            *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		consultations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consultations_total",
				Help:      "Consultations by outcome: success, fallback or audit_failed.",
			},
			[]string{"outcome"},
		),
		inferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Latency of calls to the inference API.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"result"},
		),
		panics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_panics_total",
				Help:      "Handler panics recovered, by route.",
			},
			[]string{"route"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.consultations,
		m.inferenceDuration,
		m.panics,
	)
	return m
}

// ObservePanic counts a recovered handler panic.
func (m *Metrics) ObservePanic(route string) {
	m.panics.WithLabelValues(route).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveConsultation counts one consultation outcome.
func (m *Metrics) ObserveConsultation(outcome string) {
	m.consultations.WithLabelValues(outcome).Inc()
}

// ObserveInference records the latency of one inference call.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.inferenceDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RegisterPool exposes connection pool gauges read on every scrape.
func (m *Metrics) RegisterPool(stats func() *db.PoolStats) {
	gauge := func(name, help string, read func(*db.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(stats()) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections.", func(s *db.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("idle_conns", "Idle connections.", func(s *db.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("acquired_conns", "Connections in use.", func(s *db.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("max_conns", "Pool size limit.", func(s *db.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

// Middleware records request counts and latency. Routes are labelled by
// their registered pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
