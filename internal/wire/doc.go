// Package wire defines the envelope format exchanged over the channel.
//
// Every frame is a UTF-8 JSON object with a required "kind" field.
// The kinds "ping" and "pong" are reserved for heartbeat traffic and
// are never delivered to subscribers; every other kind is
// application-defined.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Payload: opaque JSON, passed through untouched
package wire
