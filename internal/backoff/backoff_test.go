package backoff

import (
	"testing"
	"time"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{
		Base:   1 * time.Second,
		Max:    30 * time.Second,
		Factor: 2,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped (32s > max)
		{7, 30 * time.Second},
	}

	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicy_DelayMonotonic(t *testing.T) {
	p := Policy{Base: 250 * time.Millisecond, Max: 10 * time.Second, Factor: 1.5}

	prev := time.Duration(0)
	for k := 1; k <= 20; k++ {
		d := p.Delay(k)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v", k, d, k-1, prev)
		}
		prev = d
	}
}

func TestPolicy_DelayOverflow(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute, Factor: 10}

	// Large attempt numbers overflow the float math; the cap must hold.
	if got := p.Delay(500); got != time.Minute {
		t.Errorf("Delay(500) = %v, want %v", got, time.Minute)
	}
}

func TestPolicy_DelayZeroValues(t *testing.T) {
	var p Policy

	if got := p.Delay(1); got != DefaultBase {
		t.Errorf("Delay(1) = %v, want default base %v", got, DefaultBase)
	}
	if got := p.Delay(0); got != DefaultBase {
		t.Errorf("Delay(0) = %v, want default base %v", got, DefaultBase)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Policy{MaxRetries: 5}

	if p.Exhausted(5) {
		t.Error("attempt 5 of 5 should not be exhausted")
	}
	if !p.Exhausted(6) {
		t.Error("attempt 6 of 5 should be exhausted")
	}

	unlimited := Policy{MaxRetries: 0}
	if unlimited.Exhausted(1000) {
		t.Error("MaxRetries=0 should never exhaust")
	}
}
