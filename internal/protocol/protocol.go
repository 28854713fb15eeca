// Package protocol defines the wire envelope exchanged between clients and
// relay processes, and between relay processes over the fanout. Envelopes are
// values: immutable once constructed, identified only by their content.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind enumerates the envelope types on the wire.
type Kind string

const (
	KindMessage         Kind = "message"
	KindPresence        Kind = "presence"
	KindTyping          Kind = "typing"
	KindLatencyProbe    Kind = "latency_probe"
	KindLatencyAck      Kind = "latency_ack"
	KindPresenceRequest Kind = "presence_request"

	// KindConnected is server-to-client only: the registration ack sent
	// right after a connection is accepted and its backlog drained.
	KindConnected Kind = "connected"
)

// ErrMalformed reports an undecodable or structurally invalid envelope.
// Decode failures are recoverable; callers log and discard the input.
var ErrMalformed = errors.New("malformed envelope")

var validKinds = map[Kind]bool{
	KindMessage:         true,
	KindPresence:        true,
	KindTyping:          true,
	KindLatencyProbe:    true,
	KindLatencyAck:      true,
	KindPresenceRequest: true,
	KindConnected:       true,
}

// Envelope is the unit of transport. Origin carries the identifier of the
// process that first published the envelope. Every process consumes its own
// publishes like anyone else's, so Origin is diagnostic, never an ownership
// decision.
type Envelope struct {
	Type    Kind            `json:"type"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds the wire bytes for an envelope with the given payload.
func Encode(kind Kind, origin string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: kind, Origin: origin, Payload: raw})
}

// Decode parses wire bytes into an envelope. The payload is not interpreted;
// use the typed accessors for that.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !validKinds[env.Type] {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	return &env, nil
}

// NewEnvelope wraps an already-marshalled payload value.
func NewEnvelope(kind Kind, origin string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = data
	}
	return &Envelope{Type: kind, Origin: origin, Payload: raw}, nil
}

// Bytes returns the wire encoding of the envelope.
func (e *Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// Message decodes the payload of a message envelope.
func (e *Envelope) Message() (*Message, error) {
	if e.Type != KindMessage {
		return nil, fmt.Errorf("%w: %s envelope has no message payload", ErrMalformed, e.Type)
	}
	var msg Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.ID == "" || msg.SenderID == "" {
		return nil, fmt.Errorf("%w: message missing id or sender", ErrMalformed)
	}
	return &msg, nil
}

// Presence decodes the payload of a presence envelope.
func (e *Envelope) Presence() (*PresenceEvent, error) {
	if e.Type != KindPresence {
		return nil, fmt.Errorf("%w: %s envelope has no presence payload", ErrMalformed, e.Type)
	}
	var evt PresenceEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.UserID == "" || (evt.Status != StatusOnline && evt.Status != StatusOffline) {
		return nil, fmt.Errorf("%w: invalid presence event", ErrMalformed)
	}
	return &evt, nil
}

// Typing decodes the payload of a typing envelope.
func (e *Envelope) Typing() (*Typing, error) {
	if e.Type != KindTyping {
		return nil, fmt.Errorf("%w: %s envelope has no typing payload", ErrMalformed, e.Type)
	}
	var t Typing
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if t.UserID == "" {
		return nil, fmt.Errorf("%w: typing missing user id", ErrMalformed)
	}
	return &t, nil
}

// Probe decodes the payload of a latency probe or ack envelope.
func (e *Envelope) Probe() (*Probe, error) {
	if e.Type != KindLatencyProbe && e.Type != KindLatencyAck {
		return nil, fmt.Errorf("%w: %s envelope has no probe payload", ErrMalformed, e.Type)
	}
	var p Probe
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &p, nil
}
