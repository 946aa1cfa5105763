// Package broadcast implements the stream broadcast server (C5): a raw
// TCP listener that accepts subscriber connections up to a configured
// ceiling and fans each outbound NMEA sentence out to every connected
// peer. It is grounded on the teacher's output/websocket snapshot-then-
// broadcast pattern, adapted from a framed WebSocket server to a raw
// net.Listener/net.Conn stream per spec.md §6 ("no framing beyond
// CRLF-terminated sentences, no handshake").
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/frye/ais-to-nmea0183/errors"
	"github.com/frye/ais-to-nmea0183/metric"
	"github.com/frye/ais-to-nmea0183/pkg/worker"
)

// sweepInterval is the fixed 5-second dead-peer sweep interval from
// spec.md §4.5.
const sweepInterval = 5 * time.Second

// writeTimeout bounds an individual peer write; a peer that cannot
// absorb one sentence within this window is evicted per spec.md §4.5's
// "writes to a peer that errors or times out cause that peer to be
// evicted" rule.
const writeTimeout = 2 * time.Second

// acceptRate throttles newly accepted connections, defending against a
// connection-storm distinct from the static max-connections ceiling,
// grounded on the teacher's processor/graph queryLimiter pattern.
const acceptRate = rate.Limit(50)
const acceptBurst = 10

// writePoolWorkers bounds how many peer writes run concurrently per
// Broadcast call, instead of spawning one goroutine per connected peer
// on every sentence. writePoolQueueFactor sizes the pool's queue
// relative to the connection ceiling so a full fan-out rarely drops a
// write under normal load.
const writePoolWorkers = 8
const writePoolQueueFactor = 4

// Server is the stream broadcast server. It implements
// component.LifecycleComponent.
type Server struct {
	name string

	host           string
	port           int
	maxConnections int

	logger  *slog.Logger
	metrics *metric.Metrics

	peersGauge     prometheus.Gauge
	writeHistogram prometheus.Histogram

	acceptLimiter *rate.Limiter

	mu    sync.RWMutex
	peers map[uuid.UUID]*peer

	listenerMu sync.Mutex
	listener   net.Listener
	running    bool
	startedAt  time.Time
	bindErr    error

	sentTotal    atomic.Int64
	evictedTotal atomic.Int64

	writePool *worker.Pool[broadcastWrite]

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// broadcastWrite is one peer write submitted to the write pool by a
// single Broadcast call. wg is that call's own completion barrier, so
// Broadcast still returns only once every peer has been written to or
// marked dead, exactly as it did when each write ran on its own
// goroutine.
type broadcastWrite struct {
	peer   *peer
	data   []byte
	sent   *atomic.Int64
	deadMu *sync.Mutex
	dead   *[]uuid.UUID
	wg     *sync.WaitGroup
}

// Option configures optional Server behavior at construction.
type Option func(*Server)

// WithLogger overrides the fallback slog.Default()-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics wires the gateway-wide metrics for service-status
// reporting; component-specific metrics (peers connected, write
// latency) are registered separately via WithMetricsRegistry.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsRegistry registers the peers-connected gauge and per-write
// latency histogram named in SPEC_FULL.md §11, grounded on the teacher's
// output/websocket Metrics struct.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Server) {
		if registry == nil {
			return
		}
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ais_gateway_broadcast_peers_connected",
			Help: "Number of connected broadcast peers",
		})
		hist := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ais_gateway_broadcast_write_duration_seconds",
			Help:    "Per-peer write latency for broadcast sentences",
			Buckets: prometheus.DefBuckets,
		})
		if err := registry.RegisterGauge("broadcast", "peers_connected", gauge); err == nil {
			s.peersGauge = gauge
		}
		if err := registry.RegisterHistogram("broadcast", "write_duration_seconds", hist); err == nil {
			s.writeHistogram = hist
		}
	}
}

// New constructs a Server bound to host:port with the given maximum
// concurrent peer count.
func New(name, host string, port, maxConnections int, opts ...Option) *Server {
	s := &Server{
		name:           name,
		host:           host,
		port:           port,
		maxConnections: maxConnections,
		peers:          make(map[uuid.UUID]*peer),
		acceptLimiter:  rate.NewLimiter(acceptRate, acceptBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", name)
	}

	queueSize := maxConnections * writePoolQueueFactor
	s.writePool = worker.NewPool(writePoolWorkers, queueSize, s.processWrite)

	return s
}

// processWrite is the write pool's processor: it performs one peer
// write and reports the outcome back through the work item's own
// wait group and shared accumulators.
func (s *Server) processWrite(_ context.Context, w broadcastWrite) error {
	defer w.wg.Done()

	start := time.Now()
	_ = w.peer.conn.SetWriteDeadline(start.Add(writeTimeout))
	n, err := w.peer.conn.Write(w.data)
	if s.writeHistogram != nil {
		s.writeHistogram.Observe(time.Since(start).Seconds())
	}
	if err != nil || n != len(w.data) {
		w.deadMu.Lock()
		*w.dead = append(*w.dead, w.peer.id)
		w.deadMu.Unlock()
		if err == nil {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(w.data))
		}
		return err
	}
	w.sent.Add(1)
	return nil
}

// Initialize satisfies component.LifecycleComponent.
func (s *Server) Initialize() error { return nil }

// Start satisfies component.LifecycleComponent and realizes spec.md
// §4.5's start(host, port) → bool as an error-returning lifecycle call.
// A bind failure is reported once and does not stop the rest of the
// system: callers check the returned error only to decide whether this
// sink stays disabled, per spec.md §7 BindFailure semantics.
func (s *Server) Start(ctx context.Context) error {
	s.listenerMu.Lock()
	if s.running {
		s.listenerMu.Unlock()
		return nil // double-start is a no-op that succeeds
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		s.bindErr = err
		s.listenerMu.Unlock()
		s.logger.Error("bind failed, stream sink disabled", "host", s.host, "port", s.port, "error", err)
		return errors.WrapFatal(err, "broadcast.Server", "Start", "bind listener")
	}

	s.listener = ln
	s.running = true
	s.startedAt = time.Now()
	s.bindErr = nil
	s.listenerMu.Unlock()

	if err := s.writePool.Start(ctx); err != nil {
		s.logger.Warn("write pool already started", "error", err)
	}

	s.stopCh = make(chan struct{})
	s.wg.Add(2)
	go s.acceptLoop(ctx)
	go s.sweepLoop(ctx)

	s.logger.Info("stream broadcast server started", "host", s.host, "port", s.port)
	return nil
}

// StartBool mirrors spec.md §4.5's boolean-returning start(host, port)
// operation for callers that follow the spec's interface literally.
func (s *Server) StartBool(ctx context.Context) bool {
	return s.Start(ctx) == nil
}

// Stop closes the listener, evicts every connected peer, and waits up
// to timeout for the accept and sweep loops to exit.
func (s *Server) Stop(timeout time.Duration) error {
	s.listenerMu.Lock()
	if !s.running {
		s.listenerMu.Unlock()
		return nil
	}
	s.running = false
	ln := s.listener
	s.listener = nil
	s.listenerMu.Unlock()

	close(s.stopCh)
	if ln != nil {
		_ = ln.Close()
	}

	s.mu.Lock()
	for id, p := range s.peers {
		_ = p.conn.Close()
		delete(s.peers, id)
	}
	s.updatePeersGauge()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-time.After(timeout):
		stopErr = errors.WrapTransient(fmt.Errorf("timed out after %s", timeout), "broadcast.Server", "Stop", "wait for loops to exit")
	}

	if err := s.writePool.Stop(timeout); err != nil && stopErr == nil {
		stopErr = errors.WrapTransient(err, "broadcast.Server", "Stop", "stop write pool")
	}

	return stopErr
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.acceptLimiter.Wait(ctx); err != nil {
			return
		}

		s.listenerMu.Lock()
		ln := s.listener
		s.listenerMu.Unlock()
		if ln == nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		atMax := len(s.peers) >= s.maxConnections
		s.mu.Unlock()
		if atMax {
			s.logger.Warn("max connections reached, rejecting peer", "max_connections", s.maxConnections)
			_ = conn.Close()
			continue
		}

		p := newPeer(conn)
		s.mu.Lock()
		s.peers[p.id] = p
		s.updatePeersGauge()
		s.mu.Unlock()
		s.logger.Debug("peer connected", "peer_id", p.id, "remote_addr", conn.RemoteAddr())
	}
}

// sweepLoop evicts peers whose transport reports disconnected, every
// sweepInterval. The server never reads application data from a peer;
// a short, discard-only read is the only way to detect a half-closed
// connection without blocking on real traffic.
func (s *Server) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	s.mu.RLock()
	snapshot := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()

	var dead []uuid.UUID
	discard := make([]byte, 1)
	for _, p := range snapshot {
		_ = p.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err := p.conn.Read(discard)
		if err == nil {
			continue // stray client traffic; connection is alive, discard it
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue // no data, still connected
		}
		dead = append(dead, p.id)
	}
	_ = discard

	if len(dead) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range dead {
		if p, ok := s.peers[id]; ok {
			_ = p.conn.Close()
			delete(s.peers, id)
		}
	}
	s.updatePeersGauge()
	s.mu.Unlock()

	s.evictedTotal.Add(int64(len(dead)))
	s.logger.Debug("sweep evicted dead peers", "count", len(dead))
}

// Broadcast writes data to every connected peer, fanning the writes out
// across the bounded write pool rather than spawning one goroutine per
// peer per sentence, per spec.md §4.5. It returns the number of peers
// that accepted the full write. A peer whose write errors or times out
// is evicted from the set immediately, not merely logged.
func (s *Server) Broadcast(data []byte) int {
	s.mu.RLock()
	snapshot := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()

	if len(snapshot) == 0 {
		return 0
	}

	var sent atomic.Int64
	var dead []uuid.UUID
	var deadMu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range snapshot {
		wg.Add(1)
		work := broadcastWrite{peer: p, data: data, sent: &sent, deadMu: &deadMu, dead: &dead, wg: &wg}
		if err := s.writePool.Submit(work); err != nil {
			// Pool queue full or not running: this peer's write is
			// counted the same as a failed write rather than silently
			// skipped.
			wg.Done()
			deadMu.Lock()
			dead = append(dead, p.id)
			deadMu.Unlock()
		}
	}
	wg.Wait()

	if len(dead) > 0 {
		s.mu.Lock()
		for _, id := range dead {
			if p, ok := s.peers[id]; ok {
				_ = p.conn.Close()
				delete(s.peers, id)
			}
		}
		s.updatePeersGauge()
		s.mu.Unlock()
		s.evictedTotal.Add(int64(len(dead)))
	}

	total := sent.Load()
	s.sentTotal.Add(total)
	if s.metrics != nil {
		s.metrics.RecordMessagePublished(s.name, "broadcast")
	}
	return int(total)
}

func (s *Server) updatePeersGauge() {
	if s.peersGauge != nil {
		s.peersGauge.Set(float64(len(s.peers)))
	}
}

// PeerCount returns the current number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Stats exposes the raw counters for the service controller's
// statistics snapshot.
func (s *Server) Stats() (sent, evicted int64) {
	return s.sentTotal.Load(), s.evictedTotal.Load()
}
