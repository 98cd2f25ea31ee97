package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/OperatorFoundation/nahoftu4i/inbox"
	"github.com/OperatorFoundation/nahoftu4i/notify"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

const defaultListen = ":8080"

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// LockConfig selects the suspension-preventing lock.
type LockConfig struct {
	Backend  string `json:"backend,omitempty" toml:"backend"`     // "local" or "redis".
	RedisURL string `json:"redis_url,omitempty" toml:"redis_url"` // Required for the redis backend.
	Key      string `json:"key,omitempty" toml:"key"`
}

func (c *LockConfig) Merge(source *LockConfig) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.RedisURL != "" {
		c.RedisURL = source.RedisURL
	}
	if source.Key != "" {
		c.Key = source.Key
	}
}

// KeysConfig holds the receiver's private key.
type KeysConfig struct {
	PrivateKey string `json:"private_key,omitempty" toml:"private_key"` // Standard base64.
}

func (c *KeysConfig) Merge(source *KeysConfig) {
	if source.PrivateKey != "" {
		c.PrivateKey = source.PrivateKey
	}
}

// Config holds initialization parameters for the engine and the services
// embedded next to it. Each subsystem section delegates to that subsystem's
// Merge.
type Config struct {
	Session  session.Config `json:"session" toml:"session"`
	Lock     LockConfig     `json:"lock" toml:"lock"`
	Keys     KeysConfig     `json:"keys" toml:"keys"`
	Inbox    inbox.Config   `json:"inbox" toml:"inbox"`
	Notify   notify.Config  `json:"notify" toml:"notify"`
	Listen   string         `json:"listen,omitempty" toml:"listen"`
	Observer string         `json:"observer,omitempty" toml:"observer"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Session:  session.DefaultConfig(),
		Lock:     LockConfig{Backend: LockLocal},
		Inbox:    inbox.DefaultConfig(),
		Notify:   notify.DefaultConfig(),
		Listen:   defaultListen,
		Observer: "slog",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Lock.Merge(&source.Lock)
	c.Keys.Merge(&source.Keys)
	c.Inbox.Merge(&source.Inbox)
	c.Notify.Merge(&source.Notify)

	if source.Listen != "" {
		c.Listen = source.Listen
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON or TOML config file (chosen by extension), merges
// it with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.DecodeFile(filename, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// ApplyEnv loads a .env file from the working directory, if present, then
// overlays RECEIVER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	setString(&cfg.Listen, "RECEIVER_LISTEN")
	setString(&cfg.Observer, "RECEIVER_OBSERVER")
	setString(&cfg.Keys.PrivateKey, "RECEIVER_PRIVATE_KEY")
	setString(&cfg.Lock.Backend, "RECEIVER_LOCK_BACKEND")
	setString(&cfg.Lock.RedisURL, "RECEIVER_REDIS_URL")
	setString(&cfg.Lock.Key, "RECEIVER_LOCK_KEY")
	setString(&cfg.Inbox.Driver, "RECEIVER_INBOX_DRIVER")
	setString(&cfg.Inbox.Path, "RECEIVER_INBOX_PATH")
	setString(&cfg.Notify.JWTSecret, "RECEIVER_JWT_SECRET")
	setString(&cfg.Notify.RedisURL, "RECEIVER_NOTIFY_REDIS_URL")
	setString(&cfg.Notify.Channel, "RECEIVER_NOTIFY_CHANNEL")

	errs = append(errs,
		setInt(&cfg.Session.MinFragments, "RECEIVER_MIN_FRAGMENTS"),
		setInt(&cfg.Session.StreamBuffer, "RECEIVER_STREAM_BUFFER"),
		setDuration(&cfg.Session.Timeout, "RECEIVER_TIMEOUT"),
		setDuration(&cfg.Session.Warning, "RECEIVER_WARNING"),
		setDuration(&cfg.Session.MaxDuration, "RECEIVER_MAX_DURATION"),
		setDuration(&cfg.Session.SafetyMargin, "RECEIVER_SAFETY_MARGIN"),
		setDuration(&cfg.Session.RefreshInterval, "RECEIVER_REFRESH_INTERVAL"),
		setBool(&cfg.Session.AlignWindows, "RECEIVER_ALIGN_WINDOWS"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *session.Duration, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = session.Duration(d)
	return nil
}

func setBool(dst *bool, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
