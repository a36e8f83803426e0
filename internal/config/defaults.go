package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMaxRetries       = 10
	DefaultBackoffFactor    = 2.0
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultHeartbeatTimeout = 5 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 30 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultChannelBuffer    = 1000
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 1000
	DefaultFlushInterval    = 1 * time.Second
	DefaultArchiveBuffer    = 10000
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *BridgeConfig) applyDefaults() {
	// Channel defaults. max_retries distinguishes an absent key from
	// an explicit 0 (retry forever), so only nil gets the default.
	if c.Channel.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Channel.MaxRetries = &retries
	}
	if c.Channel.BackoffFactor == 0 {
		c.Channel.BackoffFactor = DefaultBackoffFactor
	}
	if c.Channel.BaseDelay == 0 {
		c.Channel.BaseDelay = DefaultBaseDelay
	}
	if c.Channel.MaxDelay == 0 {
		c.Channel.MaxDelay = DefaultMaxDelay
	}
	if c.Channel.HeartbeatTimeout == 0 {
		c.Channel.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Channel.BreakerThreshold == 0 {
		c.Channel.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.Channel.BreakerTimeout == 0 {
		c.Channel.BreakerTimeout = DefaultBreakerTimeout
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}
	if c.Channel.BufferSize == 0 {
		c.Channel.BufferSize = DefaultChannelBuffer
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBuffer
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
