// Package metrics exposes service metrics in Prometheus format: HTTP
// request timings, report renders per output format, and remote report
// fetch outcomes.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	FetchOK      = "ok"
	FetchError   = "error"
	FetchDropped = "dropped"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing, which keeps call sites free of checks in tests and the CLI.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	rendersTotal    *prometheus.CounterVec
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	uploadsTotal    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: defaultDurationBuckets,
		},
		[]string{"method", "route", "status"},
	)
	m.activeRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labdesk_http_active_requests",
		Help: "HTTP requests currently being served",
	})
	m.rendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdesk_report_renders_total",
			Help: "Rendered report tables by output format",
		},
		[]string{"format"},
	)
	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdesk_report_fetches_total",
			Help: "Remote report fetches by outcome",
		},
		[]string{"outcome"},
	)
	m.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "labdesk_report_fetch_duration_seconds",
		Help:    "Remote report fetch latency in seconds",
		Buckets: defaultDurationBuckets,
	})
	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdesk_report_uploads_total",
			Help: "Report uploads by result status",
		},
		[]string{"status"},
	)

	cs := []prometheus.Collector{
		m.requestDuration,
		m.activeRequests,
		m.rendersTotal,
		m.fetchesTotal,
		m.fetchDuration,
		m.uploadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRender counts one rendered table.
func (m *Metrics) ObserveRender(format string) {
	if m == nil {
		return
	}
	m.rendersTotal.WithLabelValues(format).Inc()
}

// ObserveFetch records one remote fetch attempt. Dropped fetches never
// reached the source and are not timed.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(outcome).Inc()
	if outcome != FetchDropped {
		m.fetchDuration.Observe(d.Seconds())
	}
}

// ObserveUpload counts one processed upload.
func (m *Metrics) ObserveUpload(status string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// Middleware records request duration and in-flight requests per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
