package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the gateway-wide metrics shared by all managed
// components (upstream client, broadcast server, datagram emitter).
// Component-specific detail (per-sentence-type counts, peer counts)
// lives closer to each component; this struct only carries the
// cross-cutting shape every component reports in the same way.
type Metrics struct {
	ServiceStatus      *prometheus.GaugeVec
	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Upstream stream client metrics (C4)
	UpstreamConnected  prometheus.Gauge
	UpstreamRTT        prometheus.Gauge
	UpstreamReconnects prometheus.Counter
	UpstreamBackoff    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all gateway-wide metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ais_gateway",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ais_gateway",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of upstream vessel records received",
			},
			[]string{"service", "type"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ais_gateway",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of vessel records encoded to NMEA",
			},
			[]string{"service", "type", "status"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ais_gateway",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of NMEA sentences dispatched to a sink",
			},
			[]string{"service", "sink"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ais_gateway",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Record-to-sentence processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ais_gateway",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ais_gateway",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		UpstreamConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ais_gateway",
				Subsystem: "upstream",
				Name:      "connected",
				Help:      "Upstream stream connection status (0=disconnected, 1=connected)",
			},
		),

		UpstreamRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ais_gateway",
				Subsystem: "upstream",
				Name:      "rtt_milliseconds",
				Help:      "Upstream subscribe round-trip time in milliseconds",
			},
		),

		UpstreamReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ais_gateway",
				Subsystem: "upstream",
				Name:      "reconnects_total",
				Help:      "Total number of upstream reconnection attempts",
			},
		),

		UpstreamBackoff: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ais_gateway",
				Subsystem: "upstream",
				Name:      "backoff_seconds",
				Help:      "Current reconnect backoff delay in seconds",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(service, messageType string) {
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

// RecordMessageProcessed increments processed message counter
func (c *Metrics) RecordMessageProcessed(service, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(service, messageType, status).Inc()
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(service, sink string) {
	c.MessagesPublished.WithLabelValues(service, sink).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordUpstreamStatus updates the upstream connection gauge.
func (c *Metrics) RecordUpstreamStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.UpstreamConnected.Set(value)
}

// RecordUpstreamRTT updates the upstream subscribe round-trip time.
func (c *Metrics) RecordUpstreamRTT(rtt time.Duration) {
	c.UpstreamRTT.Set(float64(rtt.Milliseconds()))
}

// RecordUpstreamReconnect increments the reconnect counter.
func (c *Metrics) RecordUpstreamReconnect() {
	c.UpstreamReconnects.Inc()
}

// RecordUpstreamBackoff records the current reconnect backoff delay.
func (c *Metrics) RecordUpstreamBackoff(delay time.Duration) {
	c.UpstreamBackoff.Set(delay.Seconds())
}
