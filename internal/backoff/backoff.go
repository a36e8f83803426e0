// Package backoff computes delays between reconnection attempts.
package backoff

import (
	"math"
	"time"
)

// Policy is a bounded exponential backoff: attempt k waits
// min(Base × Factor^(k-1), Max). No jitter is applied.
type Policy struct {
	Base       time.Duration
	Max        time.Duration
	Factor     float64
	MaxRetries int // 0 = unlimited
}

// Default values matching typical channel configurations.
const (
	DefaultBase       = 1 * time.Second
	DefaultMax        = 30 * time.Second
	DefaultFactor     = 2.0
	DefaultMaxRetries = 10
)

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		Base:       DefaultBase,
		Max:        DefaultMax,
		Factor:     DefaultFactor,
		MaxRetries: DefaultMaxRetries,
	}
}

// Delay returns the wait before attempt number k (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	factor := p.Factor
	if factor < 1 {
		factor = DefaultFactor
	}
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	max := p.Max
	if max <= 0 {
		max = DefaultMax
	}

	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	if d > max || d < 0 {
		// Negative means the float math overflowed.
		return max
	}
	return d
}

// Exhausted reports whether attempt number k exceeds the retry ceiling.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxRetries > 0 && attempt > p.MaxRetries
}
