// Package metrics exposes bridge counters in Prometheus text format.
//
// Key metrics:
//   - Connection state and reconnect attempts
//   - Envelopes dispatched, filtered, and dropped
//   - Heartbeat round-trip latency
//   - Archiver insert and flush counts
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds delta to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	name string
	help string
	bits atomic.Uint64
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Set sets the gauge to the given value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Value returns the current value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Registry holds all registered metrics and serves them over HTTP.
type Registry struct {
	mu       sync.RWMutex
	counters []*Counter
	gauges   []*Gauge
	names    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// NewCounter creates and registers a counter.
// It panics on a duplicate name, since duplicates produce invalid
// Prometheus output.
func (r *Registry) NewCounter(name, help string) *Counter {
	c := &Counter{name: name, help: help}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkName(name)
	r.counters = append(r.counters, c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkName(name)
	r.gauges = append(r.gauges, g)
	return g
}

func (r *Registry) checkName(name string) {
	if _, exists := r.names[name]; exists {
		panic(fmt.Sprintf("duplicate metric name: %s", name))
	}
	r.names[name] = struct{}{}
}

// Handler returns an http.Handler serving the registry in
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		counters := make([]*Counter, len(r.counters))
		copy(counters, r.counters)
		gauges := make([]*Gauge, len(r.gauges))
		copy(gauges, r.gauges)
		r.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		for _, c := range counters {
			writeHeader(w, c.name, c.help, "counter")
			fmt.Fprintf(w, "%s %d\n", c.name, c.Value())
		}
		for _, g := range gauges {
			writeHeader(w, g.name, g.help, "gauge")
			fmt.Fprintf(w, "%s %s\n", g.name, formatFloat(g.Value()))
		}
	})
}

func writeHeader(w http.ResponseWriter, name, help, typ string) {
	if help != "" {
		fmt.Fprintf(w, "# HELP %s %s\n", name, escapeHelp(help))
	}
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

// formatFloat formats a float64 for Prometheus output.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	if math.IsInf(v, -1) {
		return "-Inf"
	}
	s := fmt.Sprintf("%g", v)
	if v == float64(int64(v)) && !strings.Contains(s, ".") && !strings.Contains(s, "e") {
		return fmt.Sprintf("%.0f", v)
	}
	return s
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
