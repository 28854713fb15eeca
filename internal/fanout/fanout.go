// Package fanout is the cross-process broadcast bus. Every inbound client
// event is published here and every process holds one subscription, so local
// delivery works the same whether the originating client is local or remote.
package fanout

import (
	"context"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Handler consumes envelopes delivered by a subscription.
type Handler func(env *protocol.Envelope)

// Fanout is the publish/subscribe backbone. Delivery is at-least-once and
// unordered across publishers; order is guaranteed only among envelopes
// published by the same process.
type Fanout interface {
	// Publish sends env to every subscriber of channel, including the
	// publishing process itself.
	Publish(ctx context.Context, channel string, env *protocol.Envelope) error

	// Subscribe registers h for channel and blocks until ctx is
	// cancelled. Each process calls this once at startup.
	Subscribe(ctx context.Context, channel string, h Handler) error

	// Close releases backend resources.
	Close() error
}

// ChannelFor returns the fanout channel name for a session. Channels are
// keyed per session so publish reaches only that room's participants.
func ChannelFor(session string) string {
	return "session:" + session + ":events"
}
