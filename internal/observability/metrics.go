package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/fulfillment/internal/procurement"
)

// Metrics collects Prometheus metrics for the API and the reconciliation engine.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	overReceived      prometheus.Counter
}

// NewMetrics builds a private registry with the HTTP and engine collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_operations_total",
		Help: "Engine mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_operation_duration_seconds",
		Help:    "Engine mutation duration including the transaction.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})
	over := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_over_received_lines_total",
		Help: "Receipt lines that took an order line below zero remaining.",
	})
	registry.MustRegister(requests, duration, operations, opDuration, over)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		operationsTotal:   operations,
		operationDuration: opDuration,
		overReceived:      over,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveOperation records one engine mutation.
func (m *Metrics) ObserveOperation(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(took.Seconds())
}

// OverReceived counts over-received lines.
func (m *Metrics) OverReceived(lines int) {
	if m == nil || lines <= 0 {
		return
	}
	m.overReceived.Add(float64(lines))
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Outcome labels an engine error by its kind.
func Outcome(err error) string {
	var quantity *procurement.InsufficientQuantityError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &quantity):
		return "insufficient_quantity"
	case errors.Is(err, procurement.ErrNotFound):
		return "not_found"
	case errors.Is(err, procurement.ErrValidation):
		return "validation"
	case errors.Is(err, procurement.ErrConflict):
		return "conflict"
	case errors.Is(err, procurement.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, procurement.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "unexpected"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
