// Package datagram implements the datagram emitter (C6): a send-only UDP
// socket that emits each NMEA sentence as exactly one datagram to a
// configured endpoint, with the broadcast bit enabled so subnet-broadcast
// destinations work. It is grounded on the teacher's input/udp
// socket-lifecycle pattern, adapted from a receive loop to a single
// outbound WriteTo per sentence.
package datagram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frye/ais-to-nmea0183/errors"
	"github.com/frye/ais-to-nmea0183/metric"
)

// Emitter is the datagram sink. It implements component.LifecycleComponent.
type Emitter struct {
	name string
	host string
	port int

	logger  *slog.Logger
	metrics *metric.Metrics
	sentCounter prometheus.Counter

	mu        sync.Mutex
	conn      *net.UDPConn
	remote    *net.UDPAddr
	running   bool
	startedAt time.Time
	bindErr   error

	sent   atomic.Int64
	failed atomic.Int64
}

// Option configures optional Emitter behavior at construction.
type Option func(*Emitter)

// WithLogger overrides the fallback slog.Default()-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) { e.logger = logger }
}

// WithMetrics wires the gateway-wide metrics for publish counting.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Emitter) { e.metrics = m }
}

// WithMetricsRegistry registers a datagram-sent counter, grounded on
// SPEC_FULL.md §11.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *Emitter) {
		if registry == nil {
			return
		}
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ais_gateway_datagram_sent_total",
			Help: "Total number of datagrams sent",
		})
		if err := registry.RegisterCounter("datagram", "sent_total", counter); err == nil {
			e.sentCounter = counter
		}
	}
}

// New constructs an Emitter targeting host:port.
func New(name, host string, port int, opts ...Option) *Emitter {
	e := &Emitter{name: name, host: host, port: port}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", name)
	}
	return e
}

// Initialize satisfies component.LifecycleComponent.
func (e *Emitter) Initialize() error { return nil }

// Start opens the send-only UDP socket with the broadcast bit enabled,
// so a configured broadcast-address destination is reachable. A bind
// failure is reported once, per spec.md §7 BindFailure semantics, and
// leaves the rest of the system running.
func (e *Emitter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	remote, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", e.host, e.port))
	if err != nil {
		e.bindErr = err
		return errors.WrapFatal(err, "datagram.Emitter", "Start", "resolve destination address")
	}

	conn, err := net.DialUDP("udp4", nil, remote)
	if err != nil {
		e.bindErr = err
		e.logger.Error("bind failed, datagram sink disabled", "host", e.host, "port", e.port, "error", err)
		return errors.WrapFatal(err, "datagram.Emitter", "Start", "open socket")
	}

	if err := enableBroadcast(conn); err != nil {
		_ = conn.Close()
		e.bindErr = err
		return errors.WrapFatal(err, "datagram.Emitter", "Start", "enable SO_BROADCAST")
	}

	e.conn = conn
	e.remote = remote
	e.running = true
	e.startedAt = time.Now()
	e.bindErr = nil

	e.logger.Info("datagram emitter started", "host", e.host, "port", e.port)
	return nil
}

// enableBroadcast sets SO_BROADCAST on the socket's underlying file
// descriptor. There is no third-party abstraction over this OS-level
// socket option in the retrieval pack; it is an unavoidable use of the
// standard library's syscall package, recorded in DESIGN.md.
func enableBroadcast(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// StartBool mirrors spec.md §4.6's start(host, port) operation for
// callers that follow the spec's boolean-returning interface literally.
func (e *Emitter) StartBool(ctx context.Context) bool {
	return e.Start(ctx) == nil
}

// Stop closes the socket.
func (e *Emitter) Stop(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	return nil
}

// Emit sends data as exactly one datagram. No retries, no
// acknowledgment, per spec.md §4.6.
func (e *Emitter) Emit(data []byte) bool {
	e.mu.Lock()
	conn := e.conn
	running := e.running
	e.mu.Unlock()

	if !running || conn == nil {
		return false
	}

	n, err := conn.Write(data)
	if err != nil || n != len(data) {
		e.failed.Add(1)
		e.logger.Debug("datagram send failed", "error", err)
		return false
	}

	e.sent.Add(1)
	if e.sentCounter != nil {
		e.sentCounter.Inc()
	}
	if e.metrics != nil {
		e.metrics.RecordMessagePublished(e.name, "datagram")
	}
	return true
}

// Stats exposes the raw counters for the service controller's
// statistics snapshot.
func (e *Emitter) Stats() (sent, failed int64) {
	return e.sent.Load(), e.failed.Load()
}
