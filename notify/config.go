package notify

// DefaultChannel is the Redis channel snapshots are published on.
const DefaultChannel = "nahoftu4i:receiver:state"

// Config holds observer-surface parameters.
type Config struct {
	// JWTSecret enables token authentication on the WebSocket endpoint. Empty
	// disables authentication.
	JWTSecret string `json:"jwt_secret,omitempty" toml:"jwt_secret"`

	// RedisURL enables snapshot publishing. Empty disables it.
	RedisURL string `json:"redis_url,omitempty" toml:"redis_url"`

	// Channel is the Redis channel for published snapshots.
	Channel string `json:"channel,omitempty" toml:"channel"`
}

// DefaultConfig returns the default notify configuration.
func DefaultConfig() Config {
	return Config{Channel: DefaultChannel}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.JWTSecret != "" {
		c.JWTSecret = source.JWTSecret
	}
	if source.RedisURL != "" {
		c.RedisURL = source.RedisURL
	}
	if source.Channel != "" {
		c.Channel = source.Channel
	}
}
