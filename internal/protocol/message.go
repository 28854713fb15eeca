package protocol

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role is the declared role of a connection, fixed at connect time.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// ValidRole reports whether r is one of the closed role set.
func ValidRole(r Role) bool {
	return r == RoleInitiator || r == RoleResponder
}

// MessageKind distinguishes user text from server-generated traffic.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageSystem   MessageKind = "system"
	MessageAnalysis MessageKind = "analysis"
)

// Message is a chat unit. IDs are caller-generated and globally unique;
// consumers drop duplicate IDs because fanout delivery may be retried.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Role       Role        `json:"role,omitempty"`
	To         string      `json:"to,omitempty"` // empty means room broadcast
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind,omitempty"`
	Timestamp  int64       `json:"ts"` // Unix ms
}

// NewSystemMessage builds a server-originated message with a fresh ULID.
func NewSystemMessage(kind MessageKind, content string) Message {
	return Message{
		ID:        ulid.Make().String(),
		SenderID:  "system",
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Status is a presence level: online or offline.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// PresenceEvent reports a user's presence level. Consumers must treat it as
// level-triggered: a status repeating the previous observation for the same
// user is ignored, so retransmission never surfaces duplicate transitions.
type PresenceEvent struct {
	UserID    string `json:"user_id"`
	Status    Status `json:"status"`
	Timestamp int64  `json:"ts"` // Unix ms
}

// Typing signals that a user started or stopped typing.
type Typing struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Probe is the payload round-tripped by latency_probe/latency_ack so a
// client can estimate RTT. It is application-level and unrelated to the
// transport heartbeat.
type Probe struct {
	IssuedAt int64 `json:"issued_at"` // Unix ms, set by the client
}
