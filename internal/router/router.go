// Package router parses inbound frames into envelopes and dispatches
// them to subscribers.
//
// Heartbeat traffic (ping/pong) is intercepted and handed back to the
// connection manager, never to subscribers. An optional filter rejects
// envelopes before dispatch and an optional transform rewrites the
// payload. A panicking subscriber is logged and skipped so one faulty
// callback cannot block delivery to the others.
package router

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/wsbridge/internal/wire"
)

// Disposition describes what the router did with a frame.
type Disposition int

const (
	// Dispatched means the envelope was delivered to subscribers.
	Dispatched Disposition = iota
	// Control means the envelope is protocol-internal (ping/pong) and
	// was handed back to the caller instead of being delivered.
	Control
	// Filtered means the configured predicate rejected the envelope.
	Filtered
	// Dropped means the frame failed to parse.
	Dropped
)

// Stats contains router counters and the last delivered message.
type Stats struct {
	Received    int64
	Dispatched  int64
	Control     int64
	Filtered    int64
	ParseErrors int64

	LastKind       string
	LastTopic      string
	LastReceivedAt time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithFilter installs a predicate applied before dispatch. Envelopes
// it rejects are counted and dropped.
func WithFilter(f func(wire.Envelope) bool) Option {
	return func(r *Router) { r.filter = f }
}

// WithTransform installs a payload rewrite applied before dispatch.
func WithTransform(f func(json.RawMessage) json.RawMessage) Option {
	return func(r *Router) { r.transform = f }
}

// WithArchive copies every dispatched envelope into buf for a
// downstream consumer (the archiver).
func WithArchive(buf *GrowableBuffer[wire.Envelope]) Option {
	return func(r *Router) { r.archive = buf }
}

type subscription struct {
	id    int64
	match func(wire.Envelope) bool
	fn    func(wire.Envelope)
}

// Router routes parsed envelopes to subscribers.
type Router struct {
	logger    *slog.Logger
	filter    func(wire.Envelope) bool
	transform func(json.RawMessage) json.RawMessage
	archive   *GrowableBuffer[wire.Envelope]

	subsMu sync.RWMutex
	subs   map[int64]*subscription
	nextID int64

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Router. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger: logger,
		subs:   make(map[int64]*subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a callback for envelopes matching the predicate.
// A nil predicate matches everything. The returned func removes the
// subscription; calling it more than once is harmless.
func (r *Router) Subscribe(match func(wire.Envelope) bool, fn func(wire.Envelope)) func() {
	r.subsMu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &subscription{id: id, match: match, fn: fn}
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

// Route processes one raw frame: parse, intercept control kinds, apply
// filter and transform, dispatch. Parse failures are logged and
// dropped; they never affect connection state.
func (r *Router) Route(data []byte, receivedAt time.Time) (wire.Envelope, Disposition) {
	r.count(func(s *Stats) { s.Received++ })

	env, err := wire.Parse(data)
	if err != nil {
		r.logger.Warn("dropping unparseable frame", "error", err)
		r.count(func(s *Stats) { s.ParseErrors++ })
		return wire.Envelope{}, Dropped
	}

	if env.Control() {
		r.count(func(s *Stats) { s.Control++ })
		return env, Control
	}

	if r.filter != nil && !r.filter(env) {
		r.count(func(s *Stats) { s.Filtered++ })
		return env, Filtered
	}

	if r.transform != nil {
		env.Payload = r.transform(env.Payload)
	}

	r.count(func(s *Stats) {
		s.Dispatched++
		s.LastKind = env.Kind
		s.LastTopic = env.Topic
		s.LastReceivedAt = receivedAt
	})

	r.dispatch(env)

	if r.archive != nil {
		if !r.archive.Send(env) {
			r.logger.Warn("archive buffer closed, dropping envelope", "kind", env.Kind)
		}
	}

	return env, Dispatched
}

// dispatch delivers the envelope to every matching subscription.
func (r *Router) dispatch(env wire.Envelope) {
	r.subsMu.RLock()
	subs := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.subsMu.RUnlock()

	for _, s := range subs {
		if s.match != nil && !s.match(env) {
			continue
		}
		r.deliver(s, env)
	}
}

// deliver invokes one callback, containing any panic to that
// subscription.
func (r *Router) deliver(s *subscription, env wire.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panicked",
				"subscription", s.id,
				"kind", env.Kind,
				"panic", rec,
			)
		}
	}()
	s.fn(env)
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Subscriptions returns the number of active subscriptions.
func (r *Router) Subscriptions() int {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	return len(r.subs)
}

func (r *Router) count(fn func(*Stats)) {
	r.statsMu.Lock()
	fn(&r.stats)
	r.statsMu.Unlock()
}
