// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics groups the application collectors on their own registry.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendOps      *prometheus.CounterVec
	aiRequests      *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		backendOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_backend_operations_total",
				Help: "Task repository operations by backend, operation and result",
			},
			[]string{"backend", "op", "result"},
		),
		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_ai_requests_total",
				Help: "Generative model requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.backendOps,
		m.aiRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records request counts and latencies.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}

			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()

			m.requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBackend counts one repository operation. Safe on a nil receiver.
func (m *Metrics) ObserveBackend(backend, op string, err error) {
	if m == nil {
		return
	}
	m.backendOps.WithLabelValues(backend, op, result(err)).Inc()
}

// ObserveAI counts one generative model request. Safe on a nil receiver.
func (m *Metrics) ObserveAI(endpoint string, err error) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(endpoint, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
