package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Service metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	ServiceErrors   *prometheus.CounterVec

	// Experiment store metrics
	ExperimentUpserts *prometheus.CounterVec
	ConfigLookups     *prometheus.CounterVec

	// Frame bridge metrics
	BridgeSessions    prometheus.Gauge
	BridgeConnections *prometheus.GaugeVec
	BridgeMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ExperimentsSaved  int64   `json:"experimentsSaved"`
	ActiveConnections int64   `json:"activeConnections"`
	AverageLatency    float64 `json:"averageLatencySeconds"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headlinetester_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headlinetester_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headlinetester_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_service_calls_total",
				Help: "Total number of service calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headlinetester_service_duration_seconds",
				Help:    "Service call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method"},
		),
		ServiceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_service_errors_total",
				Help: "Total number of service errors",
			},
			[]string{"service", "method", "error_type"},
		),

		ExperimentUpserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_experiment_upserts_total",
				Help: "Experiment upserts by action and result code",
			},
			[]string{"action", "code"},
		),
		ConfigLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_widget_config_lookups_total",
				Help: "Widget configuration lookups by result",
			},
			[]string{"result"},
		),

		BridgeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headlinetester_bridge_sessions",
				Help: "Number of open frame bridge sessions",
			},
		),
		BridgeConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "headlinetester_bridge_connections",
				Help: "Number of connected bridge endpoints by role",
			},
			[]string{"role"},
		),
		BridgeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headlinetester_bridge_messages_total",
				Help: "Bridge messages by sending role and outcome",
			},
			[]string{"role", "outcome"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "headlinetester_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records a service call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordServiceError records a service error
func (m *Metrics) RecordServiceError(service, method, errorType string) {
	m.ServiceErrors.WithLabelValues(service, method, errorType).Inc()
}

// ExperimentUpserted counts an upsert outcome. It satisfies store.Observer.
func (m *Metrics) ExperimentUpserted(action experiment.Action, code string) {
	m.ExperimentUpserts.WithLabelValues(string(action), code).Inc()
	if code == "ok" {
		m.mu.Lock()
		m.snapshot.ExperimentsSaved++
		m.mu.Unlock()
	}
}

// RecordConfigLookup counts a widget config request
func (m *Metrics) RecordConfigLookup(result string) {
	m.ConfigLookups.WithLabelValues(result).Inc()
}

// SetBridgeSessions sets the number of open bridge sessions
func (m *Metrics) SetBridgeSessions(count int) {
	m.BridgeSessions.Set(float64(count))
}

// IncBridgeConnections records a connected endpoint
func (m *Metrics) IncBridgeConnections(role string) {
	m.BridgeConnections.WithLabelValues(role).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecBridgeConnections records a disconnected endpoint
func (m *Metrics) DecBridgeConnections(role string) {
	m.BridgeConnections.WithLabelValues(role).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordBridgeMessage counts a message from role as relayed or dropped
func (m *Metrics) RecordBridgeMessage(role, outcome string) {
	m.BridgeMessages.WithLabelValues(role, outcome).Inc()
}

// Snapshot returns the current values for the JSON health endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	if snap.TotalRequests > 0 {
		snap.AverageLatency = snap.totalDuration / float64(snap.TotalRequests)
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
