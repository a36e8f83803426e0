package breaker

import (
	"testing"
	"time"
)

// fakeClock lets tests advance breaker time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *fakeClock) {
	b := New(threshold, timeout)
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	b.now = clock.now
	return b, clock
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow while closed")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("State = %v after 2 failures, want closed", b.State())
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("State = %v after 3 failures, want open", b.State())
	}
	if b.Allow() {
		t.Error("expected Allow to reject while open")
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	clock.advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection before timeout elapses")
	}

	clock.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("expected one probe after timeout")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("State = %v, want half-open", b.State())
	}

	// Only a single probe is admitted until the attempt resolves.
	if b.Allow() {
		t.Error("expected second probe to be rejected")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	clock.advance(2 * time.Minute)

	if !b.Allow() {
		t.Fatal("expected probe to be admitted")
	}
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Errorf("State = %v after probe success, want closed", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow after close")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	clock.advance(2 * time.Minute)

	if !b.Allow() {
		t.Fatal("expected probe to be admitted")
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Errorf("State = %v after probe failure, want open", b.State())
	}
	if b.Allow() {
		t.Error("expected rejection until the cooldown elapses again")
	}

	clock.advance(2 * time.Minute)
	if !b.Allow() {
		t.Error("expected a fresh probe after the second cooldown")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// Two more failures stay below the threshold.
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateOpen {
		// threshold is 3, so still closed
		if b.State() != StateClosed {
			t.Errorf("State = %v, want closed", b.State())
		}
	} else {
		t.Error("failure count was not reset by success")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("State = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("State = %v after Reset, want closed", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow after Reset")
	}
}

func TestBreaker_DefaultSettings(t *testing.T) {
	b := New(0, 0)
	if b.threshold != 5 {
		t.Errorf("threshold = %d, want 5", b.threshold)
	}
	if b.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", b.timeout)
	}
}
