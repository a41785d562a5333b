package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Side-effect outcomes recorded by the dispatcher.
const (
	SideEffectSucceeded = "succeeded"
	SideEffectFailed    = "failed"
	SideEffectDropped   = "dropped"
	SideEffectSkipped   = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation on a private registry.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec
	storageErrors   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	sideEffects     *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	storageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_operation_duration_seconds",
		Help:    "Duration of storage adapter operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})

	storageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_operation_errors_total",
		Help: "Storage adapter operations that failed",
	}, []string{"backend", "op"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_transitions_total",
		Help: "Activity status transitions by source and target status",
	}, []string{"from", "to"})

	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effects_total",
		Help: "Dispatcher side effects by kind and outcome",
	}, []string{"effect", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, storageDuration, storageErrors, transitions, sideEffects, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		storageDuration: storageDuration,
		storageErrors:   storageErrors,
		transitions:     transitions,
		sideEffects:     sideEffects,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the private registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveStorageOp implements kv.Observer.
func (m *MetricsService) ObserveStorageOp(backend, op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.storageDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	if err != nil {
		m.storageErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordTransition counts one status change.
func (m *MetricsService) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordSideEffect counts one dispatcher outcome.
func (m *MetricsService) RecordSideEffect(effect, outcome string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(effect, outcome).Inc()
}
