// Package observability owns the Prometheus registry and the domain collectors.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	invoiceOps      *prometheus.CounterVec
	events          *prometheus.CounterVec
	movements       *prometheus.CounterVec
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsdesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "partsdesk_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	invoiceOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsdesk_invoice_operations_total",
		Help: "Invoice service operations by kind and outcome.",
	}, []string{"op", "outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsdesk_invoice_events_total",
		Help: "Invoice lifecycle events handed to the publisher.",
	}, []string{"type", "status"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "partsdesk_ledger_entries_total",
		Help: "Inventory ledger entries appended by direction.",
	}, []string{"direction", "reversal"})
	registry.MustRegister(requests, duration, invoiceOps, events, movements)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		invoiceOps:      invoiceOps,
		events:          events,
		movements:       movements,
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

// Middleware records request count and latency per route pattern.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveInvoiceOp counts one invoice service call.
func (m *Metrics) ObserveInvoiceOp(op, outcome string) {
	if m == nil {
		return
	}
	m.invoiceOps.WithLabelValues(op, outcome).Inc()
}

// ObserveEvent counts one publish attempt.
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	status := "published"
	if err != nil {
		status = "failed"
	}
	m.events.WithLabelValues(eventType, status).Inc()
}

// ObserveMovement counts one appended ledger entry.
func (m *Metrics) ObserveMovement(direction string, reversal bool) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(direction, strconv.FormatBool(reversal)).Inc()
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
