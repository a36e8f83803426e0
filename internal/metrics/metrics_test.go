package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_counter", "A test counter")

	c.Inc()
	c.Inc()
	c.Add(3)

	if c.Value() != 5 {
		t.Errorf("Value() = %d, want 5", c.Value())
	}
}

func TestCounter_NegativeAddIgnored(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_counter", "A test counter")

	c.Inc()
	c.Add(-10)

	if c.Value() != 1 {
		t.Errorf("Value() = %d, want 1", c.Value())
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("test_gauge", "A test gauge")

	g.Set(42.5)
	if g.Value() != 42.5 {
		t.Errorf("Value() = %f, want 42.5", g.Value())
	}

	g.Set(0)
	if g.Value() != 0 {
		t.Errorf("Value() = %f, want 0", g.Value())
	}
}

func TestRegistry_DuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("dup", "first")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate metric name")
		}
	}()
	r.NewGauge("dup", "second")
}

func TestHandler_Output(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("bridge_envelopes_total", "Total envelopes dispatched")
	g := r.NewGauge("bridge_connection_state", "Current connection state")

	c.Add(7)
	g.Set(2)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %s, want text/plain", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		"# HELP bridge_envelopes_total Total envelopes dispatched",
		"# TYPE bridge_envelopes_total counter",
		"bridge_envelopes_total 7",
		"# TYPE bridge_connection_state gauge",
		"bridge_connection_state 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestCounter_Concurrent(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("concurrent", "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if c.Value() != 1000 {
		t.Errorf("Value() = %d, want 1000", c.Value())
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{42.5, "42.5"},
		{-3, "-3"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%f) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
