package config

import (
	"sync"

	"github.com/frye/ais-to-nmea0183/errors"
)

// SafeConfig wraps a Config behind a sync.RWMutex so the service
// controller can hot-swap it (currently only the bounding box, via the
// control surface's replace-bounding-box operation) without any reader
// ever observing a torn value. Per spec.md §5, "the configuration record
// is swapped atomically as a whole" — Update replaces the pointer under
// the write lock rather than mutating fields in place.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps an already-validated Config.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{cfg: cfg}
}

// Get returns the current configuration. The returned value must be
// treated as read-only by the caller; use Clone if it needs to be
// mutated and fed back through Update.
func (s *SafeConfig) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Clone returns a deep copy of the current configuration, safe for a
// caller to mutate before calling Update.
func (s *SafeConfig) Clone() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := *s.cfg
	return &clone
}

// BoundingBox returns the current bounding box without cloning the whole
// configuration, the common case for the upstream client's reconnect
// loop reading the filter on every (re)subscribe.
func (s *SafeConfig) BoundingBox() BoundingBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.BoundingBox
}

// Update validates the candidate configuration and, only if it passes,
// swaps it in as the current configuration. A validation failure leaves
// the existing configuration untouched and returns a ConfigInvalid
// classified error.
func (s *SafeConfig) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(err, "SafeConfig", "Update", "validate replacement configuration")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// ReplaceBoundingBox swaps only the bounding box, leaving every other
// field untouched. This is the narrow hot-swap the control surface's
// replace-bounding-box operation performs (spec.md §4.7); it validates
// the resulting whole configuration before committing.
func (s *SafeConfig) ReplaceBoundingBox(bbox BoundingBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := *s.cfg
	candidate.BoundingBox = bbox
	if err := candidate.Validate(); err != nil {
		return errors.WrapInvalid(err, "SafeConfig", "ReplaceBoundingBox", "validate replacement bounding box")
	}
	s.cfg = &candidate
	return nil
}
