// Package connection keeps a logical WebSocket channel alive across an
// unreliable network.
//
// The Manager:
//   - Owns exactly one transport at a time and drives it through an
//     explicit state machine (Idle, Connecting, Open, Reconnecting, Closed)
//   - Gates attempts through a circuit breaker and schedules retries
//     with bounded exponential backoff
//   - Probes liveness with ping/pong envelopes while open
//   - Hands inbound frames to the message router for dispatch
//
// All state transitions happen on a single event-loop goroutine;
// timers and transport events are delivered into the loop as typed
// events, so there are no concurrent writers of connection state.
package connection
