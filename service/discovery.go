package service

import (
	"time"

	"github.com/frye/ais-to-nmea0183/component"
)

// Meta satisfies component.Discoverable.
func (c *Controller) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "service",
		Description: "service controller: lifecycle, configuration hot-swap, statistics",
		Version:     "1.0.0",
	}
}

// Health reports the controller healthy as long as it is running; a
// failed sink is reported through that sink's own Health, not folded in
// here, since a sink outage does not stop the process per spec.md §7.
func (c *Controller) Health() component.HealthStatus {
	c.runningMu.Lock()
	running := c.running
	startedAt := c.startedAt
	c.runningMu.Unlock()

	var uptime time.Duration
	if running && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	if c.metrics != nil {
		c.metrics.RecordHealthStatus(c.name, running)
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    uptime,
	}
}

// DataFlow satisfies component.Discoverable.
func (c *Controller) DataFlow() component.FlowMetrics {
	snap := c.Snapshot()
	var rate, errRate float64
	if snap.Uptime > 0 {
		rate = float64(snap.Converted) / snap.Uptime.Seconds()
	}
	total := snap.BroadcastSent + snap.DatagramSent + snap.SinkErrors
	if total > 0 {
		errRate = float64(snap.SinkErrors) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      time.Now(),
	}
}
