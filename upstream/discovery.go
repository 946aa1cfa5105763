package upstream

import (
	"time"

	"github.com/frye/ais-to-nmea0183/component"
)

// Meta satisfies component.Discoverable.
func (c *Client) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "upstream",
		Description: "upstream AIS stream client: dial, subscribe, decode, reconnect",
		Version:     "1.0.0",
	}
}

// Health satisfies component.Discoverable. A client is considered
// healthy whenever it is not currently in the transient Failed state;
// Connecting/Subscribing are normal transient phases of a healthy
// reconnect cycle.
func (c *Client) Health() component.HealthStatus {
	state := c.currentState()

	c.lastErrorMu.RLock()
	lastErr := c.lastError
	c.lastErrorMu.RUnlock()

	var lastErrStr string
	if lastErr != nil {
		lastErrStr = lastErr.Error()
	}

	var uptime time.Duration
	c.stateMu.RLock()
	if !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt)
	}
	c.stateMu.RUnlock()

	return component.HealthStatus{
		Healthy:    state != Failed,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errorCount.Load()),
		LastError:  lastErrStr,
		Uptime:     uptime,
	}
}

// DataFlow satisfies component.Discoverable.
func (c *Client) DataFlow() component.FlowMetrics {
	var uptime time.Duration
	c.stateMu.RLock()
	if !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt)
	}
	c.stateMu.RUnlock()

	var lastActivity time.Time
	if p := c.lastActivity.Load(); p != nil {
		lastActivity = *p
	}

	received := c.received.Load()
	decodeErrors := c.decodeErrors.Load()

	var rate, errRate float64
	if uptime > 0 {
		rate = float64(received) / uptime.Seconds()
	}
	total := received + decodeErrors
	if total > 0 {
		errRate = float64(decodeErrors) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		BytesPerSecond:    0,
		ErrorRate:         errRate,
		LastActivity:      lastActivity,
	}
}

// Stats exposes the raw counters for the service controller's
// statistics snapshot (SPEC_FULL.md §12).
func (c *Client) Stats() (received, decodeErrors int64) {
	return c.received.Load(), c.decodeErrors.Load()
}

// State reports the current connection state, mainly for the /status
// control-surface endpoint.
func (c *Client) State() State {
	return c.currentState()
}
