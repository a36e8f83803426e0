package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BridgeConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Channel.URL == "" {
		return errors.New("channel.url is required")
	}
	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		return fmt.Errorf("channel.url must be a ws:// or wss:// URL, got %q", c.Channel.URL)
	}
	if c.Channel.BackoffFactor < 1 {
		return fmt.Errorf("channel.backoff_factor must be >= 1, got %g", c.Channel.BackoffFactor)
	}
	if c.Channel.BaseDelay > c.Channel.MaxDelay {
		return fmt.Errorf("channel.base_delay (%v) cannot exceed max_delay (%v)",
			c.Channel.BaseDelay, c.Channel.MaxDelay)
	}
	if c.Channel.MaxRetries != nil && *c.Channel.MaxRetries < 0 {
		return errors.New("channel.max_retries must be >= 0")
	}
	if c.Channel.HeartbeatInterval < 0 {
		return errors.New("channel.heartbeat_interval must be >= 0")
	}
	if c.Channel.BreakerThreshold < 1 {
		return errors.New("channel.breaker_threshold must be >= 1")
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
