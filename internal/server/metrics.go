package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// metricsLogType tags request metrics apart from other emitters sharing a backend.
const metricsLogType = "request"

// Metrics records RED metrics for every request that passes the health stage.
//
//   - optimus_http_requests_total{method,route,status}
//   - optimus_http_request_duration_seconds{method,route,status}
//   - optimus_http_requests_in_flight
//
// All series carry the constant labels service, log_type and env.
type Metrics struct {
	service  string
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates request metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, service, env string) *Metrics {
	constLabels := prometheus.Labels{
		"service":  service,
		"log_type": metricsLogType,
		"env":      env,
	}

	m := &Metrics{
		service: service,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "optimus",
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "optimus",
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "route", "status"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "optimus",
				Subsystem:   "http",
				Name:        "requests_in_flight",
				Help:        "Current number of HTTP requests being processed",
				ConstLabels: constLabels,
			},
		),
	}

	reg.MustRegister(m.requests, m.duration, m.inFlight)
	return m
}

// Middleware instruments next with request metrics and an OpenTelemetry server span.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	traced := otelhttp.NewHandler(next, m.service)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		traced.ServeHTTP(ww, r)

		status := strconv.Itoa(statusOf(ww))
		route := routeOf(r)
		m.requests.WithLabelValues(r.Method, route, status).Inc()
		m.duration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeOf returns the matched chi route pattern, keeping label cardinality bounded.
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
