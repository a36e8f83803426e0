package connection

import "time"

// heartbeat tracks liveness probes for the open connection. It owns
// the interval ticker and the per-ping timeout timer; both are only
// touched from the manager's event loop, and both are released
// whenever the connection leaves the Open state.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration

	ticker *time.Ticker
	timer  *time.Timer

	lastPing    time.Time
	outstanding bool
}

func newHeartbeat(interval, timeout time.Duration) *heartbeat {
	return &heartbeat{
		interval: interval,
		timeout:  timeout,
	}
}

// enabled reports whether heartbeat monitoring is configured at all.
func (h *heartbeat) enabled() bool {
	return h.interval > 0
}

// start begins the probe interval. No-op if disabled or already running.
func (h *heartbeat) start() {
	if !h.enabled() || h.ticker != nil {
		return
	}
	h.ticker = time.NewTicker(h.interval)
}

// stop releases the ticker and any pending timeout timer.
func (h *heartbeat) stop() {
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.outstanding = false
}

// tickC returns the interval channel, or nil when not running.
// A nil channel never fires in the manager's select.
func (h *heartbeat) tickC() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.C
}

// timeoutC returns the pong-deadline channel, or nil when no ping is
// outstanding.
func (h *heartbeat) timeoutC() <-chan time.Time {
	if h.timer == nil {
		return nil
	}
	return h.timer.C
}

// pingSent records an outbound probe and arms the pong deadline.
func (h *heartbeat) pingSent(now time.Time) {
	h.lastPing = now
	h.outstanding = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.NewTimer(h.timeout)
}

// pongReceived cancels the pending deadline and returns the round-trip
// latency. Returns false for an unsolicited pong.
func (h *heartbeat) pongReceived(now time.Time) (time.Duration, bool) {
	if !h.outstanding {
		return 0, false
	}
	h.outstanding = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	return now.Sub(h.lastPing), true
}
