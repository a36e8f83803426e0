package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reserved kinds for protocol-internal heartbeat traffic.
const (
	KindPing = "ping"
	KindPong = "pong"
)

// ErrMissingKind indicates a frame parsed as JSON but had no "kind" field.
var ErrMissingKind = errors.New("envelope missing kind")

// Envelope is a single message on the channel. Immutable once constructed.
type Envelope struct {
	Kind          string          `json:"kind"`
	Topic         string          `json:"topic,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     int64           `json:"timestamp,omitempty"` // ms since epoch
	CorrelationID string          `json:"correlationId,omitempty"`
}

// Control reports whether the envelope carries protocol-internal traffic.
func (e Envelope) Control() bool {
	return e.Kind == KindPing || e.Kind == KindPong
}

// Parse decodes a raw text frame into an Envelope.
func Parse(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if e.Kind == "" {
		return Envelope{}, ErrMissingKind
	}
	return e, nil
}

// Encode serializes the envelope, defaulting Timestamp to now if unset.
func (e Envelope) Encode() ([]byte, error) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Ping builds a heartbeat probe stamped with the given time.
func Ping(ts time.Time) Envelope {
	return Envelope{Kind: KindPing, Timestamp: ts.UnixMilli()}
}

// Pong builds the heartbeat response echoing the probe's timestamp.
func Pong(ts int64) Envelope {
	return Envelope{Kind: KindPong, Timestamp: ts}
}
