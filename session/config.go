package session

import (
	"fmt"
	"time"
)

// Config controls session timing and thresholds.
type Config struct {
	// MinFragments is the fragment count at which reconstruction is attempted.
	MinFragments int `json:"min_fragments" toml:"min_fragments"`

	// Timeout is the unobserved countdown length.
	Timeout Duration `json:"timeout" toml:"timeout"`

	// Warning is how long before expiry the warning fires.
	Warning Duration `json:"warning" toml:"warning"`

	// MaxDuration bounds how long resources are held, regardless of
	// observation. SafetyMargin is added on top for the resource backstop.
	MaxDuration  Duration `json:"max_duration" toml:"max_duration"`
	SafetyMargin Duration `json:"safety_margin" toml:"safety_margin"`

	// RefreshInterval is how often an active session republishes its
	// snapshot.
	RefreshInterval Duration `json:"refresh_interval" toml:"refresh_interval"`

	// StreamBuffer is the per-subscriber buffer for state and spot streams.
	StreamBuffer int `json:"stream_buffer" toml:"stream_buffer"`

	// AlignWindows waits for the capture source's next window before running.
	AlignWindows bool `json:"align_windows" toml:"align_windows"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MinFragments:    8,
		Timeout:         Duration(60 * time.Minute),
		Warning:         Duration(5 * time.Minute),
		MaxDuration:     Duration(3 * time.Hour),
		SafetyMargin:    Duration(10 * time.Minute),
		RefreshInterval: Duration(30 * time.Second),
		StreamBuffer:    16,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MinFragments > 0 {
		c.MinFragments = source.MinFragments
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Warning > 0 {
		c.Warning = source.Warning
	}
	if source.MaxDuration > 0 {
		c.MaxDuration = source.MaxDuration
	}
	if source.SafetyMargin > 0 {
		c.SafetyMargin = source.SafetyMargin
	}
	if source.RefreshInterval > 0 {
		c.RefreshInterval = source.RefreshInterval
	}
	if source.StreamBuffer > 0 {
		c.StreamBuffer = source.StreamBuffer
	}
	if source.AlignWindows {
		c.AlignWindows = source.AlignWindows
	}
}

// Validate checks the timing relationships between fields.
func (c *Config) Validate() error {
	if c.MinFragments < 1 {
		return fmt.Errorf("min_fragments must be positive, got %d", c.MinFragments)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Warning >= c.Timeout {
		return fmt.Errorf("warning %s must be shorter than timeout %s", c.Warning, c.Timeout)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %s", c.MaxDuration)
	}
	return nil
}

// HoldLimit is the longest resources may be held for one session.
func (c *Config) HoldLimit() time.Duration {
	return c.MaxDuration.Std() + c.SafetyMargin.Std()
}

// Duration is a time.Duration that encodes as text ("90s", "1h30m") in JSON
// and TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
