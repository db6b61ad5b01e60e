package remotestore

import "time"

// Config holds the tunables left open beyond the hard constants
// (MaxPendingWrites, OnlineStateDebounce). Matches
// internal/streamer/config.go's yaml-tagged-struct-plus-ApplyDefaults
// convention.
type Config struct {
	// InitialBackoff is the first reconnect delay for either stream.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the exponential reconnect delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// BackoffMultiplier is applied to the backoff after each failed retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	// MaxRetries bounds reconnect attempts; 0 means unlimited, matching the
	// teacher's remoteStream.reconnect() convention.
	MaxRetries int `yaml:"max_retries"`
	// IdleGrace is filled in by ApplyDefaults but is not read anywhere:
	// MarkIdle applies no grace period of its own, and the wsdatastore
	// transport closes the stream as soon as MarkIdle is called.
	IdleGrace time.Duration `yaml:"idle_grace"`
}

// DefaultConfig returns the parameters grounded on the teacher's
// remoteStream.reconnect(): initial backoff 1s, multiplier 1.5, max backoff
// 60s, unlimited retries, 1s idle grace.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 1.5,
		MaxRetries:        0,
		IdleGrace:         1 * time.Second,
	}
}

// ApplyDefaults fills in zero-valued fields with DefaultConfig's values.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if c.IdleGrace == 0 {
		c.IdleGrace = defaults.IdleGrace
	}
}
