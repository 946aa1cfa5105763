package broadcast

import (
	"time"

	"github.com/frye/ais-to-nmea0183/component"
)

// Meta satisfies component.Discoverable.
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        "broadcast",
		Description: "stream broadcast server: multi-peer NMEA-0183 fan-out",
		Version:     "1.0.0",
	}
}

// Health satisfies component.Discoverable. The server reports unhealthy
// when it is not running or its last bind failed; an empty peer set is
// normal operation, not a failure.
func (s *Server) Health() component.HealthStatus {
	s.listenerMu.Lock()
	running := s.running
	startedAt := s.startedAt
	bindErr := s.bindErr
	s.listenerMu.Unlock()

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
func (s *Server) DataFlow() component.FlowMetrics {
	s.listenerMu.Lock()
	startedAt := s.startedAt
	running := s.running
	s.listenerMu.Unlock()

	var uptime time.Duration
	if running && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	sent, evicted := s.Stats()
	var rate, errRate float64
	if uptime > 0 {
		rate = float64(sent) / uptime.Seconds()
	}
	total := sent + evicted
	if total > 0 {
		errRate = float64(evicted) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      time.Now(),
	}
}
