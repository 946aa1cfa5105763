// Package service implements the service controller (C7): it owns the
// configuration record and the lifecycle of the upstream client, the
// broadcast server, and the datagram emitter, drains decoded vessel
// records through the NMEA encoder, and fans each resulting sentence out
// to both sinks concurrently. It is grounded on the teacher's main.go
// staged-startup / component-manager orchestration, generalized from a
// registry of arbitrary components to this domain's fixed three.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frye/ais-to-nmea0183/broadcast"
	"github.com/frye/ais-to-nmea0183/config"
	"github.com/frye/ais-to-nmea0183/datagram"
	"github.com/frye/ais-to-nmea0183/errors"
	"github.com/frye/ais-to-nmea0183/health"
	"github.com/frye/ais-to-nmea0183/metric"
	"github.com/frye/ais-to-nmea0183/pkg/buffer"
	"github.com/frye/ais-to-nmea0183/pkg/security"
	"github.com/frye/ais-to-nmea0183/upstream"
	"github.com/frye/ais-to-nmea0183/vessel"
)

// defaultQueueCapacity bounds the explicit hand-off between the upstream
// client's receive loop and the controller's encode/dispatch pipeline. A
// full queue drops the newest record rather than blocking the upstream
// client, per the REDESIGN FLAG replacing the original callback-only
// hand-off with an explicit bounded queue.
const defaultQueueCapacity = 1024

// replaceBoundingBoxSettle is the fixed pause between stopping the
// upstream client and restarting it with a new geographic filter.
const replaceBoundingBoxSettle = 1 * time.Second

// teardownCeiling bounds how long Stop waits for in-flight broadcasts to
// drain before closing the sinks regardless.
const teardownCeiling = 2 * time.Second

// drainPollInterval is how often the pipeline checks an empty queue for
// new work. The queue has no blocking-read API, only Block-policy
// writes, so the reader polls at a short, fixed interval.
const drainPollInterval = 20 * time.Millisecond

// serviceStatus* mirror the values documented on metric.Metrics'
// ServiceStatus gauge (0=stopped, 1=starting, 2=running, 3=stopping,
// 4=failed).
const (
	serviceStatusStopped = iota
	serviceStatusStarting
	serviceStatusRunning
	serviceStatusStopping
	serviceStatusFailed
)

// Controller is the service controller (C7).
type Controller struct {
	name   string
	logger *slog.Logger

	metrics         *metric.Metrics
	metricsRegistry *metric.MetricsRegistry
	clientTLS       security.ClientTLSConfig
	queueCapacity   int

	safeCfg *config.SafeConfig

	upstreamClient  *upstream.Client
	broadcastServer *broadcast.Server
	datagramEmitter *datagram.Emitter

	queue buffer.Buffer[*vessel.Record]

	startedAt time.Time

	ctxMu sync.RWMutex
	ctx   context.Context

	runningMu sync.Mutex
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	statsInterval time.Duration

	received      atomic.Int64
	converted     atomic.Int64
	convertErrors atomic.Int64
	broadcastSent atomic.Int64
	datagramSent  atomic.Int64
	sinkErrors    atomic.Int64

	perTypeMu sync.Mutex
	perType   map[string]int64

	monitor *health.Monitor
}

// Option configures optional Controller behavior at construction.
type Option func(*Controller)

// WithLogger overrides the fallback slog.Default()-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics wires the gateway-wide metrics shared by all managed
// components.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithMetricsRegistry registers component-specific Prometheus metrics on
// the sub-components and the handoff queue.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(c *Controller) { c.metricsRegistry = registry }
}

// WithClientTLS configures the upstream client's TLS settings, including
// optional mTLS.
func WithClientTLS(cfg security.ClientTLSConfig) Option {
	return func(c *Controller) { c.clientTLS = cfg }
}

// WithQueueCapacity overrides the default handoff queue size between the
// upstream client and the encode/dispatch pipeline.
func WithQueueCapacity(capacity int) Option {
	return func(c *Controller) { c.queueCapacity = capacity }
}

// New constructs a Controller and the three sub-components it owns, from
// the configuration currently held by safeCfg.
func New(name string, safeCfg *config.SafeConfig, opts ...Option) (*Controller, error) {
	c := &Controller{
		name:          name,
		safeCfg:       safeCfg,
		queueCapacity: defaultQueueCapacity,
		perType:       make(map[string]int64),
		monitor:       health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", name)
	}

	cfg := safeCfg.Get()
	c.statsInterval = time.Duration(cfg.Logging.StatisticsIntervalSeconds) * time.Second
	if c.statsInterval <= 0 {
		c.statsInterval = time.Duration(config.DefaultStatisticsIntervalSeconds) * time.Second
	}

	queueOpts := []buffer.Option[*vessel.Record]{
		buffer.WithOverflowPolicy[*vessel.Record](buffer.DropNewest),
		buffer.WithDropCallback(func(*vessel.Record) {
			c.logger.Warn("handoff queue full, dropping newest record")
		}),
	}
	if c.metricsRegistry != nil {
		queueOpts = append(queueOpts, buffer.WithMetrics[*vessel.Record](c.metricsRegistry, "controller_queue"))
	}
	queue, err := buffer.NewCircularBuffer[*vessel.Record](c.queueCapacity, queueOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "service.Controller", "New", "create handoff queue")
	}
	c.queue = queue

	upstreamOpts := []upstream.Option{upstream.WithLogger(c.logger), upstream.WithTLS(c.clientTLS)}
	if c.metrics != nil {
		upstreamOpts = append(upstreamOpts, upstream.WithMetrics(c.metrics))
	}
	c.upstreamClient = upstream.New(name+"-upstream", cfg.StreamURL, cfg.APIKey, c.enqueue, upstreamOpts...)
	c.upstreamClient.SetBoundingBox(cfg.BoundingBox)

	if cfg.Network.EnableStream {
		broadcastOpts := []broadcast.Option{broadcast.WithLogger(c.logger)}
		if c.metrics != nil {
			broadcastOpts = append(broadcastOpts, broadcast.WithMetrics(c.metrics))
		}
		if c.metricsRegistry != nil {
			broadcastOpts = append(broadcastOpts, broadcast.WithMetricsRegistry(c.metricsRegistry))
		}
		c.broadcastServer = broadcast.New(name+"-broadcast", cfg.Network.Stream.Host, cfg.Network.Stream.Port, cfg.Network.Stream.MaxConnections, broadcastOpts...)
	}

	if cfg.Network.EnableDatagram {
		datagramOpts := []datagram.Option{datagram.WithLogger(c.logger)}
		if c.metrics != nil {
			datagramOpts = append(datagramOpts, datagram.WithMetrics(c.metrics))
		}
		if c.metricsRegistry != nil {
			datagramOpts = append(datagramOpts, datagram.WithMetricsRegistry(c.metricsRegistry))
		}
		c.datagramEmitter = datagram.New(name+"-datagram", cfg.Network.Datagram.Host, cfg.Network.Datagram.Port, datagramOpts...)
	}

	return c, nil
}

// Upstream exposes the upstream client for the control surface's status
// reporting.
func (c *Controller) Upstream() *upstream.Client { return c.upstreamClient }

// Broadcast exposes the broadcast server, or nil if streaming is
// disabled.
func (c *Controller) Broadcast() *broadcast.Server { return c.broadcastServer }

// Datagram exposes the datagram emitter, or nil if it is disabled.
func (c *Controller) Datagram() *datagram.Emitter { return c.datagramEmitter }

// Initialize satisfies component.LifecycleComponent.
func (c *Controller) Initialize() error {
	if err := c.upstreamClient.Initialize(); err != nil {
		return err
	}
	if c.broadcastServer != nil {
		if err := c.broadcastServer.Initialize(); err != nil {
			return err
		}
	}
	if c.datagramEmitter != nil {
		if err := c.datagramEmitter.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

// Start brings up the sinks, the encode/dispatch pipeline, the
// statistics reporter, and finally the upstream client, in that order so
// no record arrives before its downstream sinks are ready.
func (c *Controller) Start(ctx context.Context) error {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return nil
	}
	c.running = true
	c.startedAt = time.Now()
	c.runningMu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordServiceStatus(c.name, serviceStatusStarting)
	}

	c.ctxMu.Lock()
	c.ctx = ctx
	c.ctxMu.Unlock()

	if c.broadcastServer != nil {
		if err := c.broadcastServer.Start(ctx); err != nil {
			c.logger.Error("broadcast sink disabled", "error", err)
		}
	}
	if c.datagramEmitter != nil {
		if err := c.datagramEmitter.Start(ctx); err != nil {
			c.logger.Error("datagram sink disabled", "error", err)
		}
	}

	c.stopCh = make(chan struct{})
	c.wg.Add(2)
	go c.processLoop(ctx)
	go c.statsLoop(ctx)

	if err := c.upstreamClient.Start(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.RecordServiceStatus(c.name, serviceStatusFailed)
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordServiceStatus(c.name, serviceStatusRunning)
	}
	c.logger.Info("service controller started", "stats_interval", c.statsInterval)
	return nil
}

// Stop stops the upstream client first so no new records arrive, lets
// the pipeline drain whatever is already queued within teardownCeiling,
// then stops both sinks.
func (c *Controller) Stop(timeout time.Duration) error {
	c.runningMu.Lock()
	if !c.running {
		c.runningMu.Unlock()
		return nil
	}
	c.running = false
	c.runningMu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordServiceStatus(c.name, serviceStatusStopping)
	}

	if err := c.upstreamClient.Stop(timeout); err != nil {
		c.logger.Warn("upstream client did not stop cleanly", "error", err)
	}

	drainDeadline := teardownCeiling
	if timeout < drainDeadline {
		drainDeadline = timeout
	}
	c.drainQueue(drainDeadline)

	close(c.stopCh)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainDeadline):
	}

	var firstErr error
	if c.broadcastServer != nil {
		if err := c.broadcastServer.Stop(teardownCeiling); err != nil {
			firstErr = err
		}
	}
	if c.datagramEmitter != nil {
		if err := c.datagramEmitter.Stop(teardownCeiling); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.queue.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if c.metrics != nil {
		status := serviceStatusStopped
		if firstErr != nil {
			status = serviceStatusFailed
		}
		c.metrics.RecordServiceStatus(c.name, status)
	}
	return firstErr
}

func (c *Controller) drainQueue(deadline time.Duration) {
	cutoff := time.Now().Add(deadline)
	for !c.queue.IsEmpty() && time.Now().Before(cutoff) {
		for _, rec := range c.queue.ReadBatch(64) {
			c.process(rec)
		}
		time.Sleep(drainPollInterval)
	}
}

// ReplaceBoundingBox implements spec.md §4.7's replace_bounding_box
// operation: it validates and commits the new filter, stops the upstream
// client, waits the fixed settle period, then restarts it so the next
// subscription frame carries the new bounding box.
func (c *Controller) ReplaceBoundingBox(bbox config.BoundingBox) error {
	if err := c.safeCfg.ReplaceBoundingBox(bbox); err != nil {
		return err
	}

	if err := c.upstreamClient.Stop(teardownCeiling); err != nil {
		c.logger.Warn("upstream client did not stop cleanly before bounding box replacement", "error", err)
	}

	time.Sleep(replaceBoundingBoxSettle)

	c.upstreamClient.SetBoundingBox(bbox)

	c.ctxMu.RLock()
	ctx := c.ctx
	c.ctxMu.RUnlock()
	if ctx == nil {
		return errors.WrapFatal(fmt.Errorf("controller not started"), "service.Controller", "ReplaceBoundingBox", "restart upstream client")
	}
	return c.upstreamClient.Start(ctx)
}

func (c *Controller) enqueue(rec *vessel.Record) {
	c.received.Add(1)
	if c.metrics != nil {
		c.metrics.RecordMessageReceived(c.name, rec.Kind.String())
	}
	if err := c.queue.Write(rec); err != nil {
		c.logger.Debug("handoff queue rejected record", "error", err)
	}
}
