package service

import (
	"context"
	"time"

	"github.com/frye/ais-to-nmea0183/health"
)

// Snapshot is the structured statistics view backing both the periodic
// log summary and the control surface's status endpoint, per
// SPEC_FULL.md §12's supplemented Snapshot feature.
type Snapshot struct {
	Received      int64            `json:"received"`
	Converted     int64            `json:"converted"`
	ConvertErrors int64            `json:"convert_errors"`
	BroadcastSent int64            `json:"broadcast_sent"`
	DatagramSent  int64            `json:"datagram_sent"`
	SinkErrors    int64            `json:"sink_errors"`
	PerType       map[string]int64 `json:"per_type"`
	Uptime        time.Duration    `json:"uptime"`
}

// Snapshot returns the current statistics. Counters are monotonic and
// never reset while the controller is alive, per spec.md §4.7.
func (c *Controller) Snapshot() Snapshot {
	c.perTypeMu.Lock()
	perType := make(map[string]int64, len(c.perType))
	for k, v := range c.perType {
		perType[k] = v
	}
	c.perTypeMu.Unlock()

	c.runningMu.Lock()
	startedAt := c.startedAt
	running := c.running
	c.runningMu.Unlock()

	var uptime time.Duration
	if running && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return Snapshot{
		Received:      c.received.Load(),
		Converted:     c.converted.Load(),
		ConvertErrors: c.convertErrors.Load(),
		BroadcastSent: c.broadcastSent.Load(),
		DatagramSent:  c.datagramSent.Load(),
		SinkErrors:    c.sinkErrors.Load(),
		PerType:       perType,
		Uptime:        uptime,
	}
}

// statsLoop emits a one-shot summary to the log sink on the configured
// interval, per spec.md §4.7, and refreshes the aggregate health monitor
// from each managed sub-component.
func (c *Controller) statsLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			c.logger.Info("statistics summary",
				"received", snap.Received,
				"converted", snap.Converted,
				"convert_errors", snap.ConvertErrors,
				"broadcast_sent", snap.BroadcastSent,
				"datagram_sent", snap.DatagramSent,
				"sink_errors", snap.SinkErrors,
				"per_type", snap.PerType,
				"uptime", snap.Uptime,
			)
			c.refreshHealth()
		}
	}
}

// refreshHealth updates the aggregate health monitor from the controller
// itself and whichever sinks are enabled.
func (c *Controller) refreshHealth() {
	c.monitor.Update("service", health.FromComponentHealth("service", c.Health()))
	c.monitor.Update("upstream", health.FromComponentHealth("upstream", c.upstreamClient.Health()))
	if c.broadcastServer != nil {
		c.monitor.Update("broadcast", health.FromComponentHealth("broadcast", c.broadcastServer.Health()))
	}
	if c.datagramEmitter != nil {
		c.monitor.Update("datagram", health.FromComponentHealth("datagram", c.datagramEmitter.Health()))
	}
}

// AggregateHealth reports the system-wide health rollup across every
// managed sub-component, per health.Aggregate's worst-case rules.
func (c *Controller) AggregateHealth() health.Status {
	c.refreshHealth()
	return health.Aggregate(c.name, valuesOf(c.monitor.GetAll()))
}

func valuesOf(m map[string]health.Status) []health.Status {
	out := make([]health.Status, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
