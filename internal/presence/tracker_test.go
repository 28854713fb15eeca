package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

func evt(user string, status protocol.Status) protocol.PresenceEvent {
	return protocol.PresenceEvent{UserID: user, Status: status, Timestamp: time.Now().UnixMilli()}
}

func TestObserveEdgeDetection(t *testing.T) {
	tr := New()

	assert.True(t, tr.Observe(evt("u1", protocol.StatusOnline)), "first online is a transition")
	assert.False(t, tr.Observe(evt("u1", protocol.StatusOnline)), "repeated online is suppressed")
	assert.True(t, tr.Observe(evt("u1", protocol.StatusOffline)), "offline after online is a transition")
	assert.False(t, tr.Observe(evt("u1", protocol.StatusOffline)), "repeated offline is suppressed")
	assert.True(t, tr.Observe(evt("u1", protocol.StatusOnline)), "reconnect surfaces again")
}

func TestObserveIsPerUser(t *testing.T) {
	tr := New()

	assert.True(t, tr.Observe(evt("u1", protocol.StatusOnline)))
	assert.True(t, tr.Observe(evt("u2", protocol.StatusOnline)), "u2 is independent of u1")
}

func TestForget(t *testing.T) {
	tr := New()

	require.True(t, tr.Observe(evt("u1", protocol.StatusOnline)))
	tr.Forget("u1")
	assert.True(t, tr.Observe(evt("u1", protocol.StatusOnline)), "forgotten user surfaces as fresh")
}

func TestAnnounceJitteredWithinBounds(t *testing.T) {
	tr := New()
	tr.SetJitter(5*time.Millisecond, 20*time.Millisecond)

	var mu sync.Mutex
	emitted := map[string]time.Time{}
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	tr.Announce([]string{"u1", "u2"}, func(e protocol.PresenceEvent) {
		mu.Lock()
		emitted[e.UserID] = time.Now()
		mu.Unlock()
		assert.Equal(t, protocol.StatusOnline, e.Status)
		wg.Done()
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 2)
	for user, at := range emitted {
		elapsed := at.Sub(start)
		assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond, "user %s answered before jitter floor", user)
		assert.Less(t, elapsed, 500*time.Millisecond, "user %s answer unreasonably late", user)
	}
}
