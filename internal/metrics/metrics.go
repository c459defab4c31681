// Package metrics provides Prometheus instrumentation for the hedge engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CalculationsTotal counts successful solves, partitioned by action.
	CalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_calculations_total",
		Help: "Total number of hedge calculations by resulting action",
	}, []string{"action"})

	// CalculationLatency tracks end-to-end solve latency including cache
	// and limit checks.
	CalculationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hedge_calculation_latency_seconds",
		Help:    "Hedge calculation latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	// InvalidInputs counts solves rejected for invalid parameters.
	InvalidInputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedge_invalid_inputs_total",
		Help: "Hedge calculations rejected for invalid input",
	})

	// LimitRejections counts hedges rejected by the limiter.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_limit_rejections_total",
		Help: "Hedges rejected by business-rule limits",
	}, []string{"limit"})

	// SensitivityRequests counts sampler requests by outcome ("curve" or "empty").
	SensitivityRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_sensitivity_requests_total",
		Help: "Sensitivity curve requests by outcome",
	}, []string{"outcome"})

	// CacheLookups counts result cache lookups by backend and outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_cache_lookups_total",
		Help: "Result cache lookups",
	}, []string{"backend", "outcome"})

	// WebSocketClients tracks connected live-session clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedge_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hedge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hedge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so WebSocket upgrades work
// behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter does not implement http.Hijacker")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
