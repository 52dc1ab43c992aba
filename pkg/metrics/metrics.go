// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered on the default registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LeadsRouted     *prometheus.CounterVec
	LeadMoves       prometheus.Counter
	RoutingFailures *prometheus.CounterVec
}

// New registers and returns the application metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brokerdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LeadsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_leads_routed_total",
			Help: "Public leads routed to a broker, by city key.",
		}, []string{"city_key"}),
		LeadMoves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "brokerdesk_lead_moves_total",
			Help: "Successful lead stage moves.",
		}),
		RoutingFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerdesk_routing_failures_total",
			Help: "Routing failures by error code.",
		}, []string{"code"}),
	}
}

// Middleware instruments every request with count and latency.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			m.RequestsTotal.WithLabelValues(
				c.Request().Method, path,
				strconv.Itoa(c.Response().Status),
			).Inc()
			m.RequestDuration.WithLabelValues(c.Request().Method, path).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
