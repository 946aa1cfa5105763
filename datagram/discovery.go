package datagram

import (
	"time"

	"github.com/frye/ais-to-nmea0183/component"
)

// Meta satisfies component.Discoverable.
func (e *Emitter) Meta() component.Metadata {
	return component.Metadata{
		Name:        e.name,
		Type:        "datagram",
		Description: "datagram emitter: one UDP datagram per NMEA sentence",
		Version:     "1.0.0",
	}
}

// Health satisfies component.Discoverable.
func (e *Emitter) Health() component.HealthStatus {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	bindErr := e.bindErr
	e.mu.Unlock()

	var lastErrStr string
	if bindErr != nil {
		lastErrStr = bindErr.Error()
	}

	var uptime time.Duration
	if running && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return component.HealthStatus{
		Healthy:   running && bindErr == nil,
		LastCheck: time.Now(),
		LastError: lastErrStr,
		Uptime:    uptime,
	}
}

// DataFlow satisfies component.Discoverable.
func (e *Emitter) DataFlow() component.FlowMetrics {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	e.mu.Unlock()

	var uptime time.Duration
	if running && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	sent, failed := e.Stats()
	var rate, errRate float64
	if uptime > 0 {
		rate = float64(sent) / uptime.Seconds()
	}
	total := sent + failed
	if total > 0 {
		errRate = float64(failed) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      time.Now(),
	}
}
