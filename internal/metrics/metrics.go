// file: internal/metrics/metrics.go

package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides centralized metrics collection for the inbox gateway.
// All methods are safe to call on a nil *Metrics, which makes metrics
// optional for every component.
type Metrics struct {
	registry *prometheus.Registry

	// Signature verification
	signatureVerificationsTotal   *prometheus.CounterVec
	signatureVerificationDuration prometheus.Histogram

	// Actor resolution
	actorResolutionsTotal *prometheus.CounterVec
	actorCacheEntries     prometheus.Gauge
	tombstonesTracked     prometheus.Gauge

	// Inbound HTTP
	httpInboundRequestsTotal *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	inboundQueueDepth        prometheus.Gauge

	// NATS
	natsPublishTotal     *prometheus.CounterVec
	natsConnectionStatus prometheus.Gauge
	natsReconnects       prometheus.Counter

	// System
	goroutines  prometheus.Gauge
	memoryBytes prometheus.Gauge
}

// NewMetrics creates a new metrics instance with all collectors registered
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,

		signatureVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signature_verifications_total",
				Help: "Total number of inbound delivery authentications by outcome",
			},
			[]string{"outcome"},
		),
		signatureVerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signature_verification_duration_seconds",
				Help:    "Time spent authenticating an inbound delivery, including actor resolution",
				Buckets: prometheus.DefBuckets,
			},
		),

		actorResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actor_resolutions_total",
				Help: "Total number of actor resolutions by source and result",
			},
			[]string{"source", "result"},
		),
		actorCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "actor_cache_entries",
				Help: "Number of actors held in the in-process cache",
			},
		),
		tombstonesTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tombstones_tracked",
				Help: "Number of actor IRIs known to be gone",
			},
		),

		httpInboundRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_inbound_requests_total",
				Help: "Total number of inbox HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Inbox HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		inboundQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "inbound_queue_depth",
				Help: "Number of accepted deliveries waiting to be published",
			},
		),

		natsPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_publish_total",
				Help: "Total number of activities published to NATS by status",
			},
			[]string{"status"},
		),
		natsConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nats_connection_status",
				Help: "NATS connection status (1 = connected, 0 = disconnected)",
			},
		),
		natsReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nats_reconnects_total",
				Help: "Total number of NATS reconnections",
			},
		),

		goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_goroutines",
				Help: "Number of goroutines",
			},
		),
		memoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_memory_bytes",
				Help: "Heap memory in use in bytes",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.signatureVerificationsTotal,
		m.signatureVerificationDuration,
		m.actorResolutionsTotal,
		m.actorCacheEntries,
		m.tombstonesTracked,
		m.httpInboundRequestsTotal,
		m.httpRequestDuration,
		m.inboundQueueDepth,
		m.natsPublishTotal,
		m.natsConnectionStatus,
		m.natsReconnects,
		m.goroutines,
		m.memoryBytes,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncSignatureVerification counts one authentication outcome
func (m *Metrics) IncSignatureVerification(outcome string) {
	if m == nil {
		return
	}
	m.signatureVerificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSignatureVerificationDuration records how long an authentication took
func (m *Metrics) ObserveSignatureVerificationDuration(seconds float64) {
	if m == nil {
		return
	}
	m.signatureVerificationDuration.Observe(seconds)
}

// IncActorResolution counts an actor lookup. source is cache, store or
// remote; result is ok, gone or error.
func (m *Metrics) IncActorResolution(source, result string) {
	if m == nil {
		return
	}
	m.actorResolutionsTotal.WithLabelValues(source, result).Inc()
}

// SetActorCacheEntries sets the in-process cache size
func (m *Metrics) SetActorCacheEntries(n float64) {
	if m == nil {
		return
	}
	m.actorCacheEntries.Set(n)
}

// SetTombstonesTracked sets the number of known gone actors
func (m *Metrics) SetTombstonesTracked(n float64) {
	if m == nil {
		return
	}
	m.tombstonesTracked.Set(n)
}

// IncHTTPInboundRequestsTotal increments HTTP inbound request counter
func (m *Metrics) IncHTTPInboundRequestsTotal(path, method, status string) {
	if m == nil {
		return
	}
	m.httpInboundRequestsTotal.WithLabelValues(path, method, status).Inc()
}

// ObserveHTTPRequestDuration observes HTTP request duration
func (m *Metrics) ObserveHTTPRequestDuration(path, method string, duration float64) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(path, method).Observe(duration)
}

// SetInboundQueueDepth sets the number of queued deliveries
func (m *Metrics) SetInboundQueueDepth(n float64) {
	if m == nil {
		return
	}
	m.inboundQueueDepth.Set(n)
}

// IncNATSPublish counts a publish attempt by status (success or error)
func (m *Metrics) IncNATSPublish(status string) {
	if m == nil {
		return
	}
	m.natsPublishTotal.WithLabelValues(status).Inc()
}

// SetNATSConnectionStatus records whether NATS is connected
func (m *Metrics) SetNATSConnectionStatus(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.natsConnectionStatus.Set(1)
	} else {
		m.natsConnectionStatus.Set(0)
	}
}

// IncNATSReconnects counts a reconnection
func (m *Metrics) IncNATSReconnects() {
	if m == nil {
		return
	}
	m.natsReconnects.Inc()
}

// UpdateSystemMetrics refreshes goroutine and memory gauges
func (m *Metrics) UpdateSystemMetrics() {
	if m == nil {
		return
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryBytes.Set(float64(memStats.Alloc))
}
