// Package config defines the gateway's configuration surface (spec.md §6)
// and a concurrency-safe wrapper for hot-swapping it at runtime. Parsing
// configuration files is out of scope for this package — the service is
// handed an already-populated, already-validated *Config by its caller —
// but the struct carries both json and yaml tags so in-repo test fixtures
// can be expressed as YAML, the teacher's own config-file format.
package config

import (
	"fmt"
	"strings"

	"github.com/frye/ais-to-nmea0183/pkg/security"
)

// Config is the complete configuration surface named in spec.md §6.
type Config struct {
	APIKey      string           `json:"api_key" yaml:"api_key"`
	StreamURL   string           `json:"stream_url" yaml:"stream_url"`
	BoundingBox BoundingBox      `json:"bounding_box" yaml:"bounding_box"`
	Network     NetworkConfig    `json:"network" yaml:"network"`
	Logging     LoggingConfig    `json:"logging" yaml:"logging"`
	Security    security.Config `json:"security,omitempty" yaml:"security,omitempty"`
}

// BoundingBox is a latitude/longitude rectangle used to filter the
// upstream subscription. The antimeridian-crossing case is represented by
// West > East, per the GLOSSARY; that ordering is permitted and is not an
// error.
type BoundingBox struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

// NetworkConfig controls which sinks are active and how each binds.
type NetworkConfig struct {
	EnableStream   bool           `json:"enable_stream" yaml:"enable_stream"`
	EnableDatagram bool           `json:"enable_datagram" yaml:"enable_datagram"`
	Stream         StreamConfig   `json:"stream" yaml:"stream"`
	Datagram       DatagramConfig `json:"datagram" yaml:"datagram"`
}

// StreamConfig binds the stream broadcast server (C5).
type StreamConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
}

// DatagramConfig addresses the datagram emitter's (C6) destination.
type DatagramConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// LoggingConfig controls the statistics reporter's interval.
type LoggingConfig struct {
	StatisticsIntervalSeconds int `json:"statistics_interval_seconds" yaml:"statistics_interval_seconds"`
}

// DefaultStatisticsIntervalSeconds is applied by Defaults when the config
// leaves the field at its zero value, per spec.md §6 ("default 30").
const DefaultStatisticsIntervalSeconds = 30

// Defaults fills in fields the spec names a default for. It does not
// validate; call Validate afterward.
func (c *Config) Defaults() {
	if c.Logging.StatisticsIntervalSeconds == 0 {
		c.Logging.StatisticsIntervalSeconds = DefaultStatisticsIntervalSeconds
	}
}

// Validate checks the configuration against every constraint named in
// spec.md §6. A non-nil error here is a ConfigInvalid condition per §7:
// fatal, reported once, and must prevent startup.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "api_key must not be empty")
	}
	if strings.TrimSpace(c.StreamURL) == "" {
		problems = append(problems, "stream_url must not be empty")
	} else if !strings.HasPrefix(c.StreamURL, "wss://") && !strings.HasPrefix(c.StreamURL, "https://") {
		problems = append(problems, "stream_url must be a secure stream URL (wss:// or https://)")
	}

	if c.BoundingBox.South >= c.BoundingBox.North {
		problems = append(problems, "bounding_box.south must be less than bounding_box.north")
	}

	if !c.Network.EnableStream && !c.Network.EnableDatagram {
		problems = append(problems, "at least one of network.enable_stream or network.enable_datagram must be true")
	}

	if c.Network.EnableStream {
		if err := validatePort(c.Network.Stream.Port); err != nil {
			problems = append(problems, fmt.Sprintf("network.stream.port: %v", err))
		}
		if c.Network.Stream.MaxConnections <= 0 {
			problems = append(problems, "network.stream.max_connections must be positive")
		}
	}

	if c.Network.EnableDatagram {
		if err := validatePort(c.Network.Datagram.Port); err != nil {
			problems = append(problems, fmt.Sprintf("network.datagram.port: %v", err))
		}
		if strings.TrimSpace(c.Network.Datagram.Host) == "" {
			problems = append(problems, "network.datagram.host must not be empty")
		}
	}

	if c.Logging.StatisticsIntervalSeconds < 0 {
		problems = append(problems, "logging.statistics_interval_seconds must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be in range 1..65535, got %d", port)
	}
	return nil
}

// ValidationError collects every constraint violation found by Validate,
// so a single configuration mistake is reported once with its siblings
// rather than stopping at the first offense.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid configuration: %s", strings.Join(e.Problems, "; "))
}
