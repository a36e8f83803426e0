package config

import "time"

// BridgeConfig is the root configuration for a bridge instance.
type BridgeConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Channel  ChannelConfig  `yaml:"channel"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ChannelConfig holds the persistent-channel settings.
type ChannelConfig struct {
	URL       string `yaml:"url"`        // WebSocket URL (ws:// or wss://)
	AuthToken string `yaml:"auth_token"` // Optional bearer token for the dial request

	Reconnect     bool          `yaml:"reconnect"`
	MaxRetries    *int          `yaml:"max_retries"` // absent = default; 0 = unlimited
	BackoffFactor float64       `yaml:"backoff_factor"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // 0 disables the heartbeat
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`

	CircuitBreaker   bool          `yaml:"circuit_breaker"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`

	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// ArchiveConfig holds the envelope archiver settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the health/metrics HTTP endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
