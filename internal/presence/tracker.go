// Package presence derives online/offline transitions from registry
// mutations and answers presence-request handshakes.
package presence

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Default jitter bounds for presence-request answers. A newly joined
// participant solicits presence from every peer at once; spreading the
// answers avoids a synchronized burst.
const (
	DefaultJitterMin = 50 * time.Millisecond
	DefaultJitterMax = 150 * time.Millisecond
)

// Tracker filters presence events down to real transitions and schedules
// jittered answers to presence requests.
type Tracker struct {
	mu   sync.Mutex
	last map[string]protocol.Status

	jitterMin time.Duration
	jitterMax time.Duration
}

// New creates a tracker with the default jitter bounds.
func New() *Tracker {
	return &Tracker{
		last:      make(map[string]protocol.Status),
		jitterMin: DefaultJitterMin,
		jitterMax: DefaultJitterMax,
	}
}

// SetJitter overrides the answer delay bounds. min must be < max.
func (t *Tracker) SetJitter(min, max time.Duration) {
	t.mu.Lock()
	t.jitterMin, t.jitterMax = min, max
	t.mu.Unlock()
}

// Observe records evt and reports whether it is a genuine transition.
// Presence is level-triggered: a status repeating the last observation for
// the same user returns false and must not surface downstream.
func (t *Tracker) Observe(evt protocol.PresenceEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[evt.UserID]; ok && prev == evt.Status {
		return false
	}
	t.last[evt.UserID] = evt.Status
	return true
}

// Forget drops the recorded status for userID. Used when a user's entry is
// fully torn down so a later reconnect surfaces as a fresh transition.
func (t *Tracker) Forget(userID string) {
	t.mu.Lock()
	delete(t.last, userID)
	t.mu.Unlock()
}

// Announce schedules a presence{online} emission for every given user after
// an independent uniform jitter delay. emit may be called concurrently.
func (t *Tracker) Announce(userIDs []string, emit func(protocol.PresenceEvent)) {
	t.mu.Lock()
	min, max := t.jitterMin, t.jitterMax
	t.mu.Unlock()

	for _, id := range userIDs {
		delay := min + rand.N(max-min)
		userID := id
		time.AfterFunc(delay, func() {
			emit(protocol.PresenceEvent{
				UserID:    userID,
				Status:    protocol.StatusOnline,
				Timestamp: time.Now().UnixMilli(),
			})
		})
	}
}
