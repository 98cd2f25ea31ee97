package inbox

import "fmt"

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds inbox store initialization parameters.
type Config struct {
	Driver string `json:"driver,omitempty" toml:"driver"` // "file" or "sqlite".
	Path   string `json:"path,omitempty" toml:"path"`     // Directory or database file; empty disables the inbox.
}

// DefaultConfig returns the default inbox configuration (disabled, file driver).
func DefaultConfig() Config {
	return Config{Driver: DriverFile}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates a Store from configuration. Returns a nil Store when Path
// is empty, indicating the inbox is disabled.
func NewStore(cfg *Config) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	switch cfg.Driver {
	case "", DriverFile:
		return NewFileStore(cfg.Path), nil
	case DriverSQLite:
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown inbox driver: %s", cfg.Driver)
	}
}
