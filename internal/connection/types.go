package connection

import (
	"errors"
	"time"

	"github.com/rickgao/wsbridge/internal/backoff"
	"github.com/rickgao/wsbridge/internal/breaker"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout (no pong)")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	ErrAlreadyClosed    = errors.New("already closed")
)

// State is the connection lifecycle state. Transitions are strictly
// sequential: Idle -> Connecting -> Open -> {Reconnecting | Closed},
// Reconnecting -> Connecting.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw frame data with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the transport
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Snapshot is an immutable view of the manager's observable state.
type Snapshot struct {
	State             State
	Circuit           breaker.State
	ReconnectAttempts int
	LastError         error
	LastLatency       time.Duration // most recent heartbeat round trip, 0 if none
	ConnectionID      string        // assigned fresh on every successful open
}

// Callbacks are optional hooks invoked from the manager's event loop.
// They must not block; anything slow belongs on the caller's goroutine.
type Callbacks struct {
	OnError            func(err error)
	OnReconnect        func(connID string)
	OnClose            func()
	OnRetriesExhausted func()
}

// ClientConfig configures a single transport connection.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g. wss://bridge.example.com/channel)
	AuthToken    string        // Optional bearer token for the dial request
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Config configures the connection Manager.
type Config struct {
	URL       string
	AuthToken string

	// Reconnection
	Reconnect     bool
	MaxRetries    int // 0 = unlimited
	BackoffFactor float64
	BaseDelay     time.Duration
	MaxDelay      time.Duration

	// Heartbeat (0 interval disables the monitor)
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Circuit breaker
	CircuitBreaker   bool
	BreakerThreshold int
	BreakerTimeout   time.Duration

	// Transport
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect:         true,
		MaxRetries:        backoff.DefaultMaxRetries,
		BackoffFactor:     backoff.DefaultFactor,
		BaseDelay:         backoff.DefaultBase,
		MaxDelay:          backoff.DefaultMax,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		CircuitBreaker:    true,
		BreakerThreshold:  5,
		BreakerTimeout:    30 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
	}
}

func (c Config) policy() backoff.Policy {
	return backoff.Policy{
		Base:       c.BaseDelay,
		Max:        c.MaxDelay,
		Factor:     c.BackoffFactor,
		MaxRetries: c.MaxRetries,
	}
}

func (c Config) clientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = c.URL
	cfg.AuthToken = c.AuthToken
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	return cfg
}
