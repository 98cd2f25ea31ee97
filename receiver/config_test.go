package receiver_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/inbox"
	"github.com/OperatorFoundation/nahoftu4i/receiver"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := receiver.DefaultConfig()

	if cfg.Lock.Backend != receiver.LockLocal {
		t.Errorf("Lock.Backend = %q, want local", cfg.Lock.Backend)
	}
	if cfg.Observer != "slog" {
		t.Errorf("Observer = %q, want slog", cfg.Observer)
	}
	if cfg.Listen == "" {
		t.Error("Listen is empty")
	}
	if cfg.Session.MinFragments != 8 {
		t.Errorf("Session.MinFragments = %d, want 8", cfg.Session.MinFragments)
	}
	if cfg.Inbox.Driver != inbox.DriverFile {
		t.Errorf("Inbox.Driver = %q, want file", cfg.Inbox.Driver)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "receiver.json",
			content: `{
				"session": {"min_fragments": 5, "timeout": "30m", "warning": "2m"},
				"lock": {"backend": "redis", "redis_url": "redis://localhost:6379/0"},
				"listen": ":9090"
			}`,
		},
		{
			name: "toml",
			file: "receiver.toml",
			content: `
listen = ":9090"

[session]
min_fragments = 5
timeout = "30m"
warning = "2m"

[lock]
backend = "redis"
redis_url = "redis://localhost:6379/0"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := receiver.LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error: %v", err)
			}

			if cfg.Session.MinFragments != 5 {
				t.Errorf("MinFragments = %d, want 5", cfg.Session.MinFragments)
			}
			if cfg.Session.Timeout.Std() != 30*time.Minute {
				t.Errorf("Timeout = %s, want 30m", cfg.Session.Timeout)
			}
			if cfg.Session.MaxDuration.Std() != 3*time.Hour {
				t.Errorf("MaxDuration = %s, want default 3h", cfg.Session.MaxDuration)
			}
			if cfg.Lock.Backend != receiver.LockRedis {
				t.Errorf("Lock.Backend = %q, want redis", cfg.Lock.Backend)
			}
			if cfg.Listen != ":9090" {
				t.Errorf("Listen = %q, want :9090", cfg.Listen)
			}
			if cfg.Observer != "slog" {
				t.Errorf("Observer = %q, want default slog", cfg.Observer)
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := receiver.LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadConfig() of missing file returned nil error")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("listen = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.LoadConfig(path); err == nil {
		t.Error("LoadConfig() of malformed toml returned nil error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RECEIVER_LISTEN", ":7070")
	t.Setenv("RECEIVER_LOCK_BACKEND", "redis")
	t.Setenv("RECEIVER_INBOX_DRIVER", "sqlite")
	t.Setenv("RECEIVER_JWT_SECRET", "s3cret")
	t.Setenv("RECEIVER_MIN_FRAGMENTS", "12")
	t.Setenv("RECEIVER_TIMEOUT", "45m")
	t.Setenv("RECEIVER_ALIGN_WINDOWS", "true")

	cfg := receiver.DefaultConfig()
	if err := receiver.ApplyEnv(&cfg); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.Listen != ":7070" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Lock.Backend != receiver.LockRedis {
		t.Errorf("Lock.Backend = %q", cfg.Lock.Backend)
	}
	if cfg.Inbox.Driver != inbox.DriverSQLite {
		t.Errorf("Inbox.Driver = %q", cfg.Inbox.Driver)
	}
	if cfg.Notify.JWTSecret != "s3cret" {
		t.Errorf("Notify.JWTSecret = %q", cfg.Notify.JWTSecret)
	}
	if cfg.Session.MinFragments != 12 {
		t.Errorf("MinFragments = %d", cfg.Session.MinFragments)
	}
	if cfg.Session.Timeout != session.Duration(45*time.Minute) {
		t.Errorf("Timeout = %s", cfg.Session.Timeout)
	}
	if !cfg.Session.AlignWindows {
		t.Error("AlignWindows = false")
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	t.Setenv("RECEIVER_MIN_FRAGMENTS", "many")
	t.Setenv("RECEIVER_TIMEOUT", "soon")

	cfg := receiver.DefaultConfig()
	if err := receiver.ApplyEnv(&cfg); err == nil {
		t.Error("ApplyEnv() accepted invalid values")
	}
	if cfg.Session.MinFragments != 8 {
		t.Errorf("MinFragments = %d, want unchanged 8", cfg.Session.MinFragments)
	}
}
