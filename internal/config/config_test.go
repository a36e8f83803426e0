package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: bridge-test
channel:
  url: wss://bridge.example.com/channel
  reconnect: true
  max_retries: 5
  backoff_factor: 2
  base_delay: 1s
  max_delay: 30s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "bridge-test" {
		t.Errorf("Instance.ID = %q, want bridge-test", cfg.Instance.ID)
	}
	if cfg.Channel.URL != "wss://bridge.example.com/channel" {
		t.Errorf("Channel.URL = %q, want wss://bridge.example.com/channel", cfg.Channel.URL)
	}
	if !cfg.Channel.Reconnect {
		t.Error("Channel.Reconnect = false, want true")
	}
	if cfg.Channel.MaxRetries == nil || *cfg.Channel.MaxRetries != 5 {
		t.Errorf("Channel.MaxRetries = %v, want 5", cfg.Channel.MaxRetries)
	}
	if cfg.Channel.BaseDelay != time.Second {
		t.Errorf("Channel.BaseDelay = %v, want 1s", cfg.Channel.BaseDelay)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BRIDGE_TOKEN", "sekrit-token")

	yaml := `
instance:
  id: bridge-test
channel:
  url: wss://bridge.example.com/channel
  auth_token: ${TEST_BRIDGE_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Channel.AuthToken != "sekrit-token" {
		t.Errorf("Channel.AuthToken = %q, want sekrit-token", cfg.Channel.AuthToken)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: bridge-test
channel:
  url: wss://bridge.example.com/channel
archive:
  enabled: true
  database:
    host: localhost
    name: bridge
    user: bridge
    password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Channel.MaxRetries == nil || *cfg.Channel.MaxRetries != DefaultMaxRetries {
		t.Errorf("Channel.MaxRetries = %v, want default %d", cfg.Channel.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Channel.BackoffFactor != DefaultBackoffFactor {
		t.Errorf("Channel.BackoffFactor = %g, want default %g", cfg.Channel.BackoffFactor, DefaultBackoffFactor)
	}
	if cfg.Channel.BaseDelay != DefaultBaseDelay {
		t.Errorf("Channel.BaseDelay = %v, want default %v", cfg.Channel.BaseDelay, DefaultBaseDelay)
	}
	if cfg.Archive.Database.Port != DefaultDBPort {
		t.Errorf("Archive.Database.Port = %d, want default %d", cfg.Archive.Database.Port, DefaultDBPort)
	}
	if cfg.Archive.Database.SSLMode != DefaultDBSSLMode {
		t.Errorf("Archive.Database.SSLMode = %q, want default %q", cfg.Archive.Database.SSLMode, DefaultDBSSLMode)
	}
	if cfg.Archive.BatchSize != DefaultBatchSize {
		t.Errorf("Archive.BatchSize = %d, want default %d", cfg.Archive.BatchSize, DefaultBatchSize)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoadWithDefaults_ExplicitZeroRetriesMeansUnlimited(t *testing.T) {
	yaml := `
instance:
  id: bridge-test
channel:
  url: wss://bridge.example.com/channel
  max_retries: 0
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// An explicit 0 requests unlimited retries and must survive
	// defaulting; only an absent key gets DefaultMaxRetries.
	if cfg.Channel.MaxRetries == nil || *cfg.Channel.MaxRetries != 0 {
		t.Errorf("Channel.MaxRetries = %v, want explicit 0", cfg.Channel.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *BridgeConfig {
		cfg := &BridgeConfig{}
		cfg.Instance.ID = "bridge-test"
		cfg.Channel.URL = "wss://bridge.example.com/channel"
		cfg.applyDefaults()
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*BridgeConfig)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*BridgeConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *BridgeConfig) { c.Instance.ID = "" },
			wantErr: "instance.id",
		},
		{
			name:    "missing url",
			mutate:  func(c *BridgeConfig) { c.Channel.URL = "" },
			wantErr: "channel.url",
		},
		{
			name:    "non-ws url",
			mutate:  func(c *BridgeConfig) { c.Channel.URL = "https://bridge.example.com" },
			wantErr: "channel.url",
		},
		{
			name:    "backoff factor below one",
			mutate:  func(c *BridgeConfig) { c.Channel.BackoffFactor = 0.5 },
			wantErr: "channel.backoff_factor",
		},
		{
			name: "base delay above max",
			mutate: func(c *BridgeConfig) {
				c.Channel.BaseDelay = time.Minute
				c.Channel.MaxDelay = time.Second
			},
			wantErr: "channel.base_delay",
		},
		{
			name: "archive enabled without host",
			mutate: func(c *BridgeConfig) {
				c.Archive.Enabled = true
			},
			wantErr: "archive.database.host",
		},
		{
			name: "negative max retries",
			mutate: func(c *BridgeConfig) {
				retries := -1
				c.Channel.MaxRetries = &retries
			},
			wantErr: "channel.max_retries",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *BridgeConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "instance: [not: valid")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
