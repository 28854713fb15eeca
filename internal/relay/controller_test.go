package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/fanout"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/queue"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/roster"
)

// cluster is a test backbone shared by any number of controllers, standing
// in for Redis.
type cluster struct {
	bus    *fanout.MemoryFanout
	queue  *queue.MemoryQueue
	roster *roster.MemoryRoster
}

func newCluster() *cluster {
	return &cluster{
		bus:    fanout.NewMemoryFanout(),
		queue:  queue.NewMemoryQueue(),
		roster: roster.NewMemoryRoster(),
	}
}

// newProcess starts a controller on the shared backbone and serves its
// websocket endpoint.
func newProcess(t *testing.T, ctx context.Context, cl *cluster) (*Controller, *httptest.Server) {
	t.Helper()

	c := NewController(Options{
		Session:           "lobby",
		HeartbeatInterval: 50 * time.Millisecond,
		Queue:             cl.queue,
		Roster:            cl.roster,
		Fanout:            cl.bus,
		Logger:            zerolog.Nop(),
	})
	c.Tracker().SetJitter(time.Millisecond, 5*time.Millisecond)
	c.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(c.HandleWS))
	t.Cleanup(srv.Close)
	// Let the fanout subscription register.
	time.Sleep(10 * time.Millisecond)
	return c, srv
}

func dial(t *testing.T, srv *httptest.Server, userID, role string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=" + userID
	if role != "" {
		url += "&role=" + role
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendMessage(t *testing.T, ws *websocket.Conn, id, sender, to, content string) {
	t.Helper()

	data, err := protocol.Encode(protocol.KindMessage, "", protocol.Message{
		ID:        id,
		SenderID:  sender,
		To:        to,
		Content:   content,
		Kind:      protocol.MessageText,
		Timestamp: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// collect reads envelopes of the wanted kind until n arrive or the deadline
// passes.
func collect(t *testing.T, ws *websocket.Conn, kind protocol.Kind, n int, timeout time.Duration) []*protocol.Envelope {
	t.Helper()

	var out []*protocol.Envelope
	deadline := time.Now().Add(timeout)
	for len(out) < n && time.Now().Before(deadline) {
		ws.SetReadDeadline(deadline)
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

func waitConnected(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	got := collect(t, ws, protocol.KindConnected, 1, 2*time.Second)
	require.Len(t, got, 1, "no connected ack")
}

func TestMissingUserIDRefused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, srv := newProcess(t, ctx, newCluster())

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownRoleRefused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, srv := newProcess(t, ctx, newCluster())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=u1&role=superuser"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCrossProcessBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srvA := newProcess(t, ctx, cl)
	_, srvB := newProcess(t, ctx, cl)

	u1 := dial(t, srvA, "u1", "initiator")
	waitConnected(t, u1)
	u2 := dial(t, srvB, "u2", "responder")
	waitConnected(t, u2)

	sendMessage(t, u1, "m1", "u1", "", "hello")

	got := collect(t, u2, protocol.KindMessage, 1, 2*time.Second)
	require.Len(t, got, 1, "u2 on process B must receive u1's broadcast")
	msg, err := got[0].Message()
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "hello", msg.Content)
}

func TestOfflineBacklogDrainedInOrderBeforeLiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srvA := newProcess(t, ctx, cl)
	_, srvB := newProcess(t, ctx, cl)

	u1 := dial(t, srvA, "u1", "initiator")
	waitConnected(t, u1)

	// u2 is offline everywhere: directed messages must queue.
	sendMessage(t, u1, "m-a", "u1", "u2", "a")
	sendMessage(t, u1, "m-b", "u1", "u2", "b")
	time.Sleep(50 * time.Millisecond)

	u2 := dial(t, srvB, "u2", "responder")

	// The backlog is written before the connected ack, so it shows up
	// while waiting for the ack.
	var contents []string
	deadline := time.Now().Add(2 * time.Second)
	u2.SetReadDeadline(deadline)
	for {
		_, data, err := u2.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		if env.Type == protocol.KindConnected {
			break
		}
		if env.Type == protocol.KindMessage {
			msg, err := env.Message()
			require.NoError(t, err)
			contents = append(contents, msg.Content)
		}
	}
	assert.Equal(t, []string{"a", "b"}, contents, "backlog must replay in order before the ack")

	// A live message after reconnect follows the drained backlog.
	sendMessage(t, u1, "m-c", "u1", "u2", "c")
	got := collect(t, u2, protocol.KindMessage, 1, 2*time.Second)
	require.Len(t, got, 1)
	msg, err := got[0].Message()
	require.NoError(t, err)
	assert.Equal(t, "c", msg.Content)
}

func TestDuplicateFanoutDeliveryDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srv := newProcess(t, ctx, cl)

	u1 := dial(t, srv, "u1", "initiator")
	waitConnected(t, u1)

	env, err := protocol.NewEnvelope(protocol.KindMessage, "some-other-process", protocol.Message{
		ID:       "dup-1",
		SenderID: "u9",
		Content:  "once only",
	})
	require.NoError(t, err)

	// At-least-once backbone: the same envelope arrives twice.
	require.NoError(t, cl.bus.Publish(ctx, fanout.ChannelFor("lobby"), env))
	require.NoError(t, cl.bus.Publish(ctx, fanout.ChannelFor("lobby"), env))

	got := collect(t, u1, protocol.KindMessage, 2, 500*time.Millisecond)
	require.Len(t, got, 1, "duplicate message ID must be silently dropped")
}

func TestPresenceRequestAnswered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srvA := newProcess(t, ctx, cl)
	_, srvB := newProcess(t, ctx, cl)

	u1 := dial(t, srvA, "u1", "initiator")
	waitConnected(t, u1)

	u2 := dial(t, srvB, "u2", "responder")
	waitConnected(t, u2)

	data, err := protocol.Encode(protocol.KindPresenceRequest, "", nil)
	require.NoError(t, err)
	require.NoError(t, u2.WriteMessage(websocket.TextMessage, data))

	// u2 must learn that u1, on another process, is online. Other
	// presence traffic (u2's own announcements) may interleave.
	got := collect(t, u2, protocol.KindPresence, 4, 2*time.Second)
	for _, env := range got {
		evt, err := env.Presence()
		require.NoError(t, err)
		if evt.UserID == "u1" && evt.Status == protocol.StatusOnline {
			return
		}
	}
	t.Fatalf("u2 never learned u1 is online; saw %d presence events", len(got))
}

func TestDisconnectEmitsSingleOfflinePresence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srvA := newProcess(t, ctx, cl)
	_, srvB := newProcess(t, ctx, cl)

	u1 := dial(t, srvA, "u1", "initiator")
	waitConnected(t, u1)
	u2 := dial(t, srvB, "u2", "responder")
	waitConnected(t, u2)

	require.NoError(t, u1.Close())

	// Read a full window: the offline event must arrive exactly once.
	var offline int
	for _, env := range collect(t, u2, protocol.KindPresence, 10, time.Second) {
		evt, err := env.Presence()
		require.NoError(t, err)
		if evt.UserID == "u1" && evt.Status == protocol.StatusOffline {
			offline++
		}
	}
	assert.Equal(t, 1, offline, "exactly one offline transition for u1")

	online, err := cl.roster.IsOnline(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, online, "roster must drop u1 on disconnect")
}

func TestTypingNotEchoedToTypist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srv := newProcess(t, ctx, cl)

	u1 := dial(t, srv, "u1", "initiator")
	waitConnected(t, u1)
	u2 := dial(t, srv, "u2", "responder")
	waitConnected(t, u2)

	data, err := protocol.Encode(protocol.KindTyping, "", protocol.Typing{UserID: "u1", IsTyping: true})
	require.NoError(t, err)
	require.NoError(t, u1.WriteMessage(websocket.TextMessage, data))

	got := collect(t, u2, protocol.KindTyping, 1, time.Second)
	require.Len(t, got, 1, "u2 must see u1 typing")

	echo := collect(t, u1, protocol.KindTyping, 1, 200*time.Millisecond)
	assert.Empty(t, echo, "typist must not see their own typing event")
}

func TestLatencyProbeAnsweredDirectly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srv := newProcess(t, ctx, cl)

	u1 := dial(t, srv, "u1", "initiator")
	waitConnected(t, u1)

	issued := time.Now().UnixMilli()
	data, err := protocol.Encode(protocol.KindLatencyProbe, "", protocol.Probe{IssuedAt: issued})
	require.NoError(t, err)
	require.NoError(t, u1.WriteMessage(websocket.TextMessage, data))

	got := collect(t, u1, protocol.KindLatencyAck, 1, time.Second)
	require.Len(t, got, 1)
	probe, err := got[0].Probe()
	require.NoError(t, err)
	assert.Equal(t, issued, probe.IssuedAt)
}

func TestReconnectReplacesStaleConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	c, srv := newProcess(t, ctx, cl)

	first := dial(t, srv, "u1", "initiator")
	waitConnected(t, first)

	second := dial(t, srv, "u1", "initiator")
	waitConnected(t, second)

	// The stale connection is closed server-side; the fresh one stays
	// registered and usable.
	assert.Eventually(t, func() bool { return c.LocalConnections() == 1 }, time.Second, 10*time.Millisecond)

	sendMessage(t, second, "m1", "u1", "", "still here")
	got := collect(t, second, protocol.KindMessage, 1, time.Second)
	require.Len(t, got, 1, "fresh connection must receive broadcasts")

	online, err := cl.roster.IsOnline(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, online, "u1 must stay online after reconnect")
}

func TestMalformedClientFrameIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	_, srv := newProcess(t, ctx, cl)

	u1 := dial(t, srv, "u1", "initiator")
	waitConnected(t, u1)
	u2 := dial(t, srv, "u2", "responder")
	waitConnected(t, u2)

	require.NoError(t, u1.WriteMessage(websocket.TextMessage, []byte("not an envelope")))
	require.NoError(t, u1.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))

	// The connection survives and keeps relaying.
	sendMessage(t, u1, "m1", "u1", "", "after garbage")
	got := collect(t, u2, protocol.KindMessage, 1, time.Second)
	require.Len(t, got, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
	assert.Equal(t, "after garbage", payload["content"])
}

func TestHeartbeatEvictionOfSilentPeer(t *testing.T) {
	// gorilla clients only answer pings while the application reads, so a
	// connected client that stops reading goes silent exactly like a dead
	// peer: the transport stays up but pongs stop flowing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := newCluster()
	c, srvA := newProcess(t, ctx, cl)
	_, srvB := newProcess(t, ctx, cl)

	u2 := dial(t, srvB, "u2", "responder")
	waitConnected(t, u2)

	u1 := dial(t, srvA, "u1", "initiator")
	waitConnected(t, u1)
	// From here on u1 never reads again: no pong ever reaches the monitor.

	assert.Eventually(t, func() bool { return c.LocalConnections() == 0 },
		2*time.Second, 20*time.Millisecond, "dead peer must be evicted")

	var sawOffline bool
	for _, env := range collect(t, u2, protocol.KindPresence, 4, 2*time.Second) {
		evt, err := env.Presence()
		require.NoError(t, err)
		if evt.UserID == "u1" && evt.Status == protocol.StatusOffline {
			sawOffline = true
		}
	}
	assert.True(t, sawOffline, "eviction must surface as offline presence")
}

func TestSeenSetBounded(t *testing.T) {
	s := newSeenSet(3)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m%d", i)
		assert.False(t, s.observe(id), "first observation of %s", id)
		assert.True(t, s.observe(id), "second observation of %s", id)
	}
	// m0 was evicted by the ring; it counts as new again.
	assert.False(t, s.observe("m0"))
}
