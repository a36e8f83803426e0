package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/wsbridge/internal/backoff"
	"github.com/rickgao/wsbridge/internal/breaker"
	"github.com/rickgao/wsbridge/internal/router"
	"github.com/rickgao/wsbridge/internal/wire"
)

// Loop events. Everything that can change connection state arrives as
// one of these, so the run goroutine is the only writer.
type (
	connectEvent   struct{}
	reconnectEvent struct{}

	sendEvent struct {
		env   wire.Envelope
		reply chan error
	}

	dialResult struct {
		gen    uint64
		client Client
		err    error
	}
)

// Manager keeps one logical channel alive. It owns the transport,
// the retry schedule, and the heartbeat; subscribers receive inbound
// envelopes through the router.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	routes    *router.Router
	breaker   *breaker.Breaker
	policy    backoff.Policy
	callbacks Callbacks

	events  chan any
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Cancelled on Disconnect so in-flight dials abort promptly.
	dialCtx    context.Context
	dialCancel context.CancelFunc

	// Everything below is owned by run(); no mutex.
	state         State
	client        Client
	connID        string
	attempts      int
	lastErr       error
	lastLatency   time.Duration
	dialGen       uint64
	dialsInFlight int
	retryTimer    *time.Timer
	hb            *heartbeat

	// Published copy of the observable state.
	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a Manager and starts its event loop. The channel stays
// Idle until Connect is called. A nil router gets a default one; a nil
// logger falls back to slog.Default().
func New(cfg Config, routes *router.Router, cb Callbacks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = router.New(logger)
	}

	hbTimeout := cfg.HeartbeatTimeout
	if hbTimeout <= 0 {
		hbTimeout = cfg.HeartbeatInterval
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		routes:    routes,
		breaker:   breaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout),
		policy:    cfg.policy(),
		callbacks: cb,
		events:    make(chan any, 64),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		hb:        newHeartbeat(cfg.HeartbeatInterval, hbTimeout),
	}
	m.dialCtx, m.dialCancel = context.WithCancel(context.Background())
	m.publish()

	go m.run()

	return m
}

// Connect begins connection attempts. Idempotent: a no-op while the
// channel is connecting, open, or already waiting on a retry.
func (m *Manager) Connect() {
	m.post(connectEvent{})
}

// Reconnect resets the attempt counter and the circuit breaker, then
// begins a fresh attempt. This is the resume path after retries are
// exhausted.
func (m *Manager) Reconnect() {
	m.post(reconnectEvent{})
}

// Disconnect closes the channel with a normal close code and cancels
// all pending timers. Terminal: it returns once the event loop has
// exited, after which no further state transition can occur.
func (m *Manager) Disconnect() {
	m.once.Do(func() { close(m.stop) })
	<-m.stopped
}

// Send writes an envelope to the channel. Fails fast with
// ErrNotConnected when the channel is not open; nothing is queued.
// Must not be called from a subscriber callback.
func (m *Manager) Send(env wire.Envelope) error {
	reply := make(chan error, 1)
	select {
	case m.events <- sendEvent{env: env, reply: reply}:
	case <-m.stopped:
		return ErrAlreadyClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return ErrAlreadyClosed
	}
}

// Subscribe registers a callback for envelopes matching the predicate.
// A nil predicate matches everything. Returns an unsubscribe func.
func (m *Manager) Subscribe(match func(wire.Envelope) bool, fn func(wire.Envelope)) func() {
	return m.routes.Subscribe(match, fn)
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// Router returns the message router serving this channel.
func (m *Manager) Router() *router.Router {
	return m.routes
}

func (m *Manager) post(ev any) {
	select {
	case m.events <- ev:
	case <-m.stopped:
	}
}

// run is the single control flow that processes transport events and
// timer firings. Only it mutates connection state.
func (m *Manager) run() {
	defer close(m.stopped)

	for {
		select {
		case <-m.stop:
			m.teardown()
			m.reapDials()
			return

		case ev := <-m.events:
			m.handle(ev)

		case <-m.retryC():
			m.retryTimer = nil
			m.attempts++
			m.publish()
			m.beginAttempt()

		case <-m.hb.tickC():
			m.pingDue()

		case <-m.hb.timeoutC():
			m.pongMissed()

		case msg, ok := <-m.clientMessages():
			if ok {
				m.handleFrame(msg)
			}

		case err := <-m.clientErrors():
			m.transportError(err)
		}
	}
}

func (m *Manager) handle(ev any) {
	switch ev := ev.(type) {
	case connectEvent:
		switch m.state {
		case StateConnecting, StateOpen, StateReconnecting:
			m.logger.Debug("connect ignored", "state", m.state.String())
		default:
			m.beginAttempt()
		}

	case reconnectEvent:
		m.attempts = 0
		m.breaker.Reset()
		m.cancelRetry()
		if m.state == StateConnecting || m.state == StateOpen {
			m.publish()
			return
		}
		m.beginAttempt()

	case sendEvent:
		ev.reply <- m.sendNow(ev.env)

	case dialResult:
		m.dialsInFlight--
		if ev.gen != m.dialGen {
			// A disconnect or reconnect superseded this dial.
			if ev.err == nil {
				ev.client.Close()
			}
			return
		}
		if ev.err != nil {
			m.failure(ev.err)
			return
		}
		m.opened(ev.client)
	}
}

// beginAttempt consults the circuit breaker and, if allowed, dials a
// fresh transport off-loop. A rejected attempt is deferred to the
// retry schedule so the breaker can re-probe after its cooldown.
func (m *Manager) beginAttempt() {
	if m.cfg.CircuitBreaker && !m.breaker.Allow() {
		m.logger.Debug("circuit open, deferring attempt",
			"circuit", m.breaker.State().String(),
		)
		m.lastErr = breaker.ErrOpen
		m.state = StateReconnecting
		m.scheduleRetry()
		return
	}

	m.state = StateConnecting
	m.publish()

	m.dialGen++
	gen := m.dialGen
	cl := NewClient(m.cfg.clientConfig(), m.logger)

	// The result is always posted, never dropped: the loop stays alive
	// until every in-flight dial has been reaped, so an orphaned
	// transport cannot leak past Disconnect.
	m.dialsInFlight++
	go func() {
		err := cl.Connect(m.dialCtx)
		m.events <- dialResult{gen: gen, client: cl, err: err}
	}()
}

// reapDials consumes events until every in-flight dial has reported
// back, closing any transport that opened after teardown. Runs after
// teardown, so dialCtx is already cancelled and the wait is short.
func (m *Manager) reapDials() {
	for m.dialsInFlight > 0 {
		switch ev := (<-m.events).(type) {
		case dialResult:
			m.dialsInFlight--
			if ev.err == nil {
				ev.client.Close()
			}
		case sendEvent:
			ev.reply <- ErrAlreadyClosed
		}
	}
}

// opened transitions to Open after a successful dial.
func (m *Manager) opened(cl Client) {
	wasReconnect := m.attempts > 0

	m.client = cl
	m.state = StateOpen
	m.connID = uuid.NewString()
	m.attempts = 0
	if m.cfg.CircuitBreaker {
		m.breaker.RecordSuccess()
	}
	m.hb.start()
	m.publish()

	m.logger.Info("channel open",
		"conn_id", m.connID,
		"url", m.cfg.URL,
	)

	if wasReconnect && m.callbacks.OnReconnect != nil {
		m.callbacks.OnReconnect(m.connID)
	}
}

// failure records a failed attempt or dropped connection and decides
// whether to schedule another try.
func (m *Manager) failure(err error) {
	m.lastErr = err
	if m.cfg.CircuitBreaker {
		m.breaker.RecordFailure()
	}

	m.logger.Warn("connection failure", "error", err)

	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}

	if !m.cfg.Reconnect {
		m.state = StateClosed
		m.publish()
		return
	}

	m.state = StateReconnecting
	m.scheduleRetry()
}

// scheduleRetry arms the one-shot retry timer for the next attempt,
// or surfaces exhaustion once the ceiling is exceeded.
func (m *Manager) scheduleRetry() {
	next := m.attempts + 1
	if m.policy.Exhausted(next) {
		m.logger.Error("reconnect retries exhausted", "attempts", m.attempts)
		m.lastErr = ErrRetriesExhausted
		m.state = StateClosed
		m.publish()
		if m.callbacks.OnRetriesExhausted != nil {
			m.callbacks.OnRetriesExhausted()
		}
		return
	}

	delay := m.policy.Delay(next)
	m.logger.Info("scheduling reconnect",
		"attempt", next,
		"delay", delay,
	)
	m.publish()

	m.cancelRetry()
	m.retryTimer = time.NewTimer(delay)
}

func (m *Manager) cancelRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) retryC() <-chan time.Time {
	if m.retryTimer == nil {
		return nil
	}
	return m.retryTimer.C
}

func (m *Manager) clientMessages() <-chan TimestampedMessage {
	if m.client == nil {
		return nil
	}
	return m.client.Messages()
}

func (m *Manager) clientErrors() <-chan error {
	if m.client == nil {
		return nil
	}
	return m.client.Errors()
}

// transportError handles an unexpected close or read failure on the
// open transport.
func (m *Manager) transportError(err error) {
	if m.state != StateOpen {
		return
	}
	m.dropTransport()
	m.failure(err)
}

// dropTransport releases the transport and every timer tied to the
// Open state. Hard invariant: nothing owned by Open survives this.
func (m *Manager) dropTransport() {
	m.hb.stop()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.connID = ""
	m.lastLatency = 0
}

// pingDue sends a heartbeat probe and arms the pong deadline.
func (m *Manager) pingDue() {
	if m.state != StateOpen {
		return
	}

	now := time.Now()
	data, err := wire.Ping(now).Encode()
	if err == nil {
		err = m.client.Send(data)
	}
	if err != nil {
		m.logger.Debug("failed to send ping", "error", err)
		return
	}
	m.hb.pingSent(now)
}

// pongMissed forces the transport closed after a heartbeat timeout,
// which routes through the normal failure path.
func (m *Manager) pongMissed() {
	if m.state != StateOpen {
		return
	}

	m.logger.Warn("no pong received, connection stale",
		"last_ping", m.hb.lastPing,
		"timeout", m.hb.timeout,
	)
	m.dropTransport()
	m.failure(ErrHeartbeatTimeout)
}

// handleFrame routes one inbound frame. Control envelopes feed the
// heartbeat; everything else was already dispatched by the router.
func (m *Manager) handleFrame(msg TimestampedMessage) {
	env, disp := m.routes.Route(msg.Data, msg.ReceivedAt)
	if disp != router.Control {
		return
	}

	switch env.Kind {
	case wire.KindPong:
		if latency, ok := m.hb.pongReceived(msg.ReceivedAt); ok {
			m.lastLatency = latency
			m.publish()
			m.logger.Debug("pong received", "latency", latency)
		}

	case wire.KindPing:
		// Peer-initiated probe: echo the timestamp back.
		if err := m.sendNow(wire.Pong(env.Timestamp)); err != nil {
			m.logger.Debug("failed to answer ping", "error", err)
		}
	}
}

// sendNow writes an envelope on the loop goroutine. No-op failure
// unless the channel is Open.
func (m *Manager) sendNow(env wire.Envelope) error {
	if m.state != StateOpen || m.client == nil {
		return ErrNotConnected
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return m.client.Send(data)
}

// teardown is the caller-initiated terminal transition. Cancels the
// retry timer and heartbeat before releasing the transport, so no
// state transition can follow.
func (m *Manager) teardown() {
	m.dialCancel()
	m.cancelRetry()
	m.dropTransport()
	m.state = StateClosed
	m.publish()

	m.logger.Info("channel closed")

	if m.callbacks.OnClose != nil {
		m.callbacks.OnClose()
	}
}

// publish copies loop-owned state into the snapshot read by callers.
func (m *Manager) publish() {
	snap := Snapshot{
		State:             m.state,
		Circuit:           m.breaker.State(),
		ReconnectAttempts: m.attempts,
		LastError:         m.lastErr,
		LastLatency:       m.lastLatency,
		ConnectionID:      m.connID,
	}

	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()
}
