package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.MinFragments != 8 {
		t.Errorf("MinFragments = %d, want 8", cfg.MinFragments)
	}
	if cfg.Timeout.Std() != time.Hour {
		t.Errorf("Timeout = %s, want 1h", cfg.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if got := cfg.HoldLimit(); got != 190*time.Minute {
		t.Errorf("HoldLimit() = %s, want 3h10m", got)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := session.DefaultConfig()
	source := session.Config{
		MinFragments: 4,
		Warning:      session.Duration(time.Minute),
		AlignWindows: true,
	}

	cfg.Merge(&source)

	if cfg.MinFragments != 4 {
		t.Errorf("MinFragments = %d, want 4", cfg.MinFragments)
	}
	if cfg.Warning.Std() != time.Minute {
		t.Errorf("Warning = %s, want 1m", cfg.Warning)
	}
	if cfg.Timeout.Std() != time.Hour {
		t.Errorf("Timeout overwritten by zero value: %s", cfg.Timeout)
	}
	if !cfg.AlignWindows {
		t.Error("AlignWindows not merged")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.Config)
	}{
		{name: "zero threshold", mutate: func(c *session.Config) { c.MinFragments = 0 }},
		{name: "warning not before timeout", mutate: func(c *session.Config) { c.Warning = c.Timeout }},
		{name: "no max duration", mutate: func(c *session.Config) { c.MaxDuration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := session.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	var cfg session.Config
	if err := json.Unmarshal([]byte(`{"timeout":"90s","warning":"15s"}`), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Timeout.Std() != 90*time.Second {
		t.Errorf("Timeout = %s, want 1m30s", cfg.Timeout)
	}

	if err := json.Unmarshal([]byte(`{"timeout":"soon"}`), &cfg); err == nil {
		t.Error("Unmarshal() accepted an invalid duration")
	}
}
