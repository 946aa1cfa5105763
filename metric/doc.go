// Package metric provides Prometheus-based metrics collection and an HTTP
// server for the gateway's observability surface.
//
// The package offers a centralized metrics registry managing both
// gateway-wide metrics (service status, message processing, upstream
// connectivity) and component-specific metrics registered by the
// components that own them. It includes an HTTP server exposing metrics
// in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: gateway-wide metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with a health check (Server type)
//
// This separates infrastructure concerns (core metrics) from per-component
// concerns (buffer depth, peer counts, datagram sends) while exposing a
// single metrics endpoint to Prometheus.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{}
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("upstream", 2)
//	coreMetrics.RecordMessageReceived("upstream", "PositionReport")
//	coreMetrics.RecordUpstreamStatus(true)
//
// The server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
//   - Service lifecycle: ais_gateway_service_status{service="..."}
//   - Record flow: ais_gateway_messages_received_total, ais_gateway_messages_processed_total
//   - Dispatch: ais_gateway_messages_published_total{sink="broadcast|datagram"}
//   - Processing latency: ais_gateway_processing_duration_seconds
//   - Errors: ais_gateway_errors_total
//   - Upstream connectivity: ais_gateway_upstream_connected, ais_gateway_upstream_rtt_milliseconds,
//     ais_gateway_upstream_reconnects_total, ais_gateway_upstream_backoff_seconds
//
// # Component-Specific Metrics
//
// Components register their own counters, gauges, and histograms through
// the MetricsRegistrar interface rather than growing the core Metrics
// struct. The broadcast server registers a connected-peer gauge; the
// datagram emitter registers a sent-packets counter; pkg/buffer registers
// per-buffer write/read/drop counters when given a registry via
// WithMetrics.
//
//	peersGauge := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "ais_gateway_broadcast_peers_connected",
//	    Help: "Number of connected broadcast peers",
//	})
//	err := registry.RegisterGauge("broadcast", "peers_connected", peersGauge)
//
// # HTTP Server
//
//   - GET / - HTML page linking to metrics and health
//   - GET /metrics - Prometheus-formatted metrics
//   - GET /health - plain-text health check
//
// # Thread Safety
//
// Registration methods use mutex protection; metric recording itself is
// lock-free (a Prometheus guarantee). CoreMetrics() and PrometheusRegistry()
// are safe for concurrent use.
//
// # Error Handling
//
// Registration methods return a classified error (via the errors package)
// for duplicate registration and for underlying Prometheus registration
// failures, so callers can distinguish a configuration mistake (Invalid)
// from an unexpected Prometheus-level failure (Fatal).
package metric
