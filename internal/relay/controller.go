// Package relay orchestrates the session relay: it owns the accept path,
// wires inbound socket traffic to the fanout, and fans fanout deliveries out
// to the connections registered on this process.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/fanout"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/heartbeat"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/history"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/metrics"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/presence"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/queue"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/registry"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/roster"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/sentiment"
)

const seenCapacity = 4096

// Options configures a Controller.
type Options struct {
	Session           string
	HeartbeatInterval time.Duration
	Queue             queue.Queue
	Roster            roster.Roster
	Fanout            fanout.Fanout
	Sentiment         *sentiment.Client // nil disables analysis
	HistorySize       int
	Logger            zerolog.Logger
}

// Connected is the payload of the registration ack sent to a client right
// after its backlog drains.
type Connected struct {
	UserID    string `json:"user_id"`
	Session   string `json:"session"`
	Timestamp int64  `json:"ts"`
}

// Controller is the relay's orchestrator. One per process; constructed at
// start, torn down at stop.
type Controller struct {
	origin  string
	session string
	channel string

	reg     *registry.Registry
	tracker *presence.Tracker
	monitor *heartbeat.Monitor
	queue   queue.Queue
	roster  roster.Roster
	bus     fanout.Fanout
	hist    *history.Log
	seen    *seenSet
	senti   *sentiment.Client

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewController wires the relay's components together.
func NewController(opts Options) *Controller {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}

	c := &Controller{
		origin:  uuid.NewString(),
		session: opts.Session,
		channel: fanout.ChannelFor(opts.Session),
		reg:     registry.New(),
		tracker: presence.New(),
		queue:   opts.Queue,
		roster:  opts.Roster,
		bus:     opts.Fanout,
		hist:    history.NewLog(opts.HistorySize),
		seen:    newSeenSet(seenCapacity),
		senti:   opts.Sentiment,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from anywhere; identity is the query
			// params, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: opts.Logger.With().Str("session", opts.Session).Logger(),
	}

	c.monitor = heartbeat.New(c.reg, opts.HeartbeatInterval, c.evict, c.logger)
	return c
}

// Origin returns this process's opaque fanout token.
func (c *Controller) Origin() string { return c.origin }

// Session returns the room this controller serves.
func (c *Controller) Session() string { return c.session }

// LocalConnections returns the number of connections held by this process.
func (c *Controller) LocalConnections() int { return c.reg.Len() }

// Tracker exposes the presence tracker, mainly so jitter bounds can be
// tightened in tests.
func (c *Controller) Tracker() *presence.Tracker { return c.tracker }

// Run starts the heartbeat monitor and the fanout subscription. It returns
// immediately; both stop when ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	go c.monitor.Run(ctx)
	go func() {
		if err := c.bus.Subscribe(ctx, c.channel, c.dispatch); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("fanout subscription ended")
		}
	}()
}

// Shutdown closes every local connection. The registry empties as each
// connection's teardown runs.
func (c *Controller) Shutdown() {
	c.reg.ForEach(func(e registry.Entry) {
		_ = e.Conn.Close()
	})
}

// HandleWS is the websocket accept path. A missing user identifier refuses
// the connection before upgrading.
func (c *Controller) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		metrics.ConnectionsRefused.WithLabelValues("missing_identity").Inc()
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	role := protocol.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = protocol.RoleResponder
	}
	if !protocol.ValidRole(role) {
		metrics.ConnectionsRefused.WithLabelValues("bad_role").Inc()
		http.Error(w, `{"error":"unknown role"}`, http.StatusBadRequest)
		return
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		c.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(userID, role, ws)
	ws.SetPongHandler(func(string) error {
		c.reg.Touch(userID)
		return nil
	})

	metrics.ConnectionsTotal.WithLabelValues(string(role)).Inc()
	c.logger.Info().
		Str("user_id", userID).
		Str("role", string(role)).
		Str("remote_addr", r.RemoteAddr).
		Msg("connection accepted")

	go s.writePump()
	c.admit(r.Context(), s)
	go c.readPump(s)
}

// admit runs the registration sequence: register, drain the offline
// backlog, join the roster, announce presence, ack. The backlog is drained
// twice: a publish racing the first drain still saw the user offline and
// enqueued, so the second pass replays it before presence announces the
// user and live traffic starts.
func (c *Controller) admit(ctx context.Context, s *session) {
	c.reg.Register(s.userID, s.role, s)
	metrics.ConnectionsActive.Set(float64(c.reg.Len()))

	c.deliverBacklog(ctx, s)

	if err := c.roster.MarkOnline(ctx, s.userID); err != nil {
		c.logger.Warn().Err(err).Str("user_id", s.userID).Msg("roster mark online failed")
	}

	c.deliverBacklog(ctx, s)

	c.emitPresence(ctx, s.userID, protocol.StatusOnline)

	ack, err := protocol.NewEnvelope(protocol.KindConnected, c.origin, Connected{
		UserID:    s.userID,
		Session:   c.session,
		Timestamp: time.Now().UnixMilli(),
	})
	if err == nil {
		if err := s.WriteEnvelope(ack); err != nil {
			c.logger.Debug().Err(err).Str("user_id", s.userID).Msg("connected ack dropped")
		}
	}
}

func (c *Controller) deliverBacklog(ctx context.Context, s *session) {
	backlog, err := c.queue.Drain(ctx, s.userID)
	if err != nil {
		c.logger.Error().Err(err).Str("user_id", s.userID).Msg("offline backlog drain failed")
		return
	}
	for _, msg := range backlog {
		env, err := protocol.NewEnvelope(protocol.KindMessage, c.origin, msg)
		if err != nil {
			continue
		}
		if err := s.WriteEnvelope(env); err != nil {
			c.logger.Warn().Err(err).Str("user_id", s.userID).Msg("backlog delivery failed")
			return
		}
		metrics.OfflineDrained.Inc()
	}
	if len(backlog) > 0 {
		c.logger.Info().
			Str("user_id", s.userID).
			Int("count", len(backlog)).
			Msg("offline backlog replayed")
	}
}

// readPump consumes frames from one connection until it dies, then runs the
// teardown path. Graceful close, socket error and heartbeat eviction all
// converge here.
func (c *Controller) readPump(s *session) {
	defer c.teardown(s)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}

		// Any inbound traffic is an implicit heartbeat ack.
		c.reg.Touch(s.userID)

		env, err := protocol.Decode(data)
		if err != nil {
			metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
			c.logger.Warn().
				Err(err).
				Str("user_id", s.userID).
				Msg("dropping malformed client envelope")
			continue
		}

		metrics.EnvelopesIn.WithLabelValues(string(env.Type)).Inc()
		c.handleInbound(s, env)
	}
}

func (c *Controller) handleInbound(s *session, env *protocol.Envelope) {
	ctx := context.Background()

	switch env.Type {
	case protocol.KindLatencyProbe:
		// Answered directly, never published.
		ack := &protocol.Envelope{Type: protocol.KindLatencyAck, Origin: c.origin, Payload: env.Payload}
		if err := s.WriteEnvelope(ack); err != nil {
			c.logger.Debug().Err(err).Str("user_id", s.userID).Msg("latency ack dropped")
		}

	case protocol.KindLatencyAck, protocol.KindConnected:
		// Not meaningful from a client.

	case protocol.KindMessage:
		msg, err := env.Message()
		if err != nil {
			metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
			c.logger.Warn().Err(err).Str("user_id", s.userID).Msg("dropping malformed message")
			return
		}
		c.routeMessage(ctx, msg)

	default:
		// typing, presence, presence_request pass through verbatim.
		c.publish(ctx, &protocol.Envelope{Type: env.Type, Origin: c.origin, Payload: env.Payload})
	}
}

// routeMessage decides between live publish and the offline queue. A
// directed message whose recipient is online nowhere in the cluster is
// queued instead of published; broadcasts always publish.
func (c *Controller) routeMessage(ctx context.Context, msg *protocol.Message) {
	if msg.To != "" {
		online, err := c.roster.IsOnline(ctx, msg.To)
		if err != nil {
			// Degraded: without the roster we cannot prove the
			// recipient offline, so prefer live delivery.
			c.logger.Warn().Err(err).Str("to", msg.To).Msg("roster lookup failed, publishing anyway")
			online = true
		}
		if !online {
			if err := c.queue.Enqueue(ctx, msg.To, *msg); err != nil {
				c.logger.Error().Err(err).Str("to", msg.To).Msg("offline enqueue failed")
				return
			}
			metrics.OfflineEnqueued.Inc()
			c.logger.Debug().
				Str("to", msg.To).
				Str("message_id", msg.ID).
				Msg("recipient offline, message queued")
			return
		}
	}

	env, err := protocol.NewEnvelope(protocol.KindMessage, c.origin, msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("message encode failed")
		return
	}
	c.publish(ctx, env)
}

// publish sends env to the fanout. If the backend is unreachable the
// envelope is dispatched locally so connections on this process keep
// working while the subscription loop retries.
func (c *Controller) publish(ctx context.Context, env *protocol.Envelope) {
	if err := c.bus.Publish(ctx, c.channel, env); err != nil {
		metrics.FanoutPublishErrors.Inc()
		c.logger.Error().Err(err).Msg("fanout publish failed, delivering local-only")
		c.dispatch(env)
		return
	}
	metrics.FanoutPublished.Inc()
}

// dispatch handles one envelope delivered by the fanout subscription and
// fans it out to the connections registered on this process.
func (c *Controller) dispatch(env *protocol.Envelope) {
	metrics.FanoutDelivered.Inc()

	switch env.Type {
	case protocol.KindMessage:
		msg, err := env.Message()
		if err != nil {
			metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
			c.logger.Warn().Err(err).Msg("dropping malformed fanout message")
			return
		}
		// Delivery may be retried; duplicate IDs are dropped here, at
		// the point of consumption.
		if c.seen.observe(msg.ID) {
			metrics.EnvelopesDropped.WithLabelValues("duplicate").Inc()
			return
		}
		c.hist.Append(*msg)
		if msg.To != "" {
			if conn, ok := c.reg.Lookup(msg.To); ok {
				c.write(conn, msg.To, env)
			}
			// Echo to the sender so their own transcript stays complete.
			if msg.SenderID != msg.To {
				if conn, ok := c.reg.Lookup(msg.SenderID); ok {
					c.write(conn, msg.SenderID, env)
				}
			}
			return
		}
		c.broadcast(env, "")

	case protocol.KindPresence:
		if _, err := env.Presence(); err != nil {
			metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
			return
		}
		// Presence is level-triggered; consumers suppress repeats, so
		// forwarding every event is safe and keeps late joiners
		// informed.
		c.broadcast(env, "")

	case protocol.KindTyping:
		typ, err := env.Typing()
		if err != nil {
			metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
			return
		}
		c.broadcast(env, typ.UserID)

	case protocol.KindPresenceRequest:
		c.answerPresenceRequest()

	default:
		// latency probes and acks never travel the fanout.
	}
}

// answerPresenceRequest schedules a jittered presence{online} for every
// locally held connection, so a newly joined peer learns who is already
// here without a synchronized response burst.
func (c *Controller) answerPresenceRequest() {
	var users []string
	c.reg.ForEach(func(e registry.Entry) {
		users = append(users, e.UserID)
	})
	if len(users) == 0 {
		return
	}

	c.tracker.Announce(users, func(evt protocol.PresenceEvent) {
		env, err := protocol.NewEnvelope(protocol.KindPresence, c.origin, evt)
		if err != nil {
			return
		}
		c.publish(context.Background(), env)
	})
}

// broadcast writes env to every local connection except skipUser.
func (c *Controller) broadcast(env *protocol.Envelope, skipUser string) {
	c.reg.ForEach(func(e registry.Entry) {
		if skipUser != "" && e.UserID == skipUser {
			return
		}
		c.write(e.Conn, e.UserID, env)
	})
}

// write delivers env to one connection, dropping the connection if its
// outbound buffer is full.
func (c *Controller) write(conn registry.Conn, userID string, env *protocol.Envelope) {
	if err := conn.WriteEnvelope(env); err != nil {
		c.logger.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("dropping slow or closed consumer")
		_ = conn.Close()
	}
}

// evict is the heartbeat monitor's callback. Closing the socket unblocks
// the read pump, which funnels into the same teardown as a graceful close.
func (c *Controller) evict(e registry.Entry) {
	metrics.HeartbeatEvictions.Inc()
	_ = e.Conn.Close()
}

// teardown runs once per connection when its read pump exits. The registry
// identity check makes it idempotent: a reconnect that already replaced
// this session leaves the fresh registration untouched and emits nothing.
func (c *Controller) teardown(s *session) {
	_ = s.Close()

	if !c.reg.Unregister(s.userID, s) {
		return
	}
	metrics.ConnectionsActive.Set(float64(c.reg.Len()))

	ctx := context.Background()
	if err := c.roster.MarkOffline(ctx, s.userID); err != nil {
		c.logger.Warn().Err(err).Str("user_id", s.userID).Msg("roster mark offline failed")
	}

	c.emitPresence(ctx, s.userID, protocol.StatusOffline)
	c.tracker.Forget(s.userID)
	c.logger.Info().Str("user_id", s.userID).Msg("connection closed")
}

// emitPresence publishes a presence transition if it is genuinely new.
// The tracker suppresses repeats so a close racing an eviction cannot
// double-emit offline.
func (c *Controller) emitPresence(ctx context.Context, userID string, status protocol.Status) {
	evt := protocol.PresenceEvent{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
	if !c.tracker.Observe(evt) {
		metrics.EnvelopesDropped.WithLabelValues("stale_presence").Inc()
		return
	}

	env, err := protocol.NewEnvelope(protocol.KindPresence, c.origin, evt)
	if err != nil {
		return
	}
	c.publish(ctx, env)
}

// Analyze snapshots the recent message window and asks the sentiment
// collaborator for a summary in the background. The result is published as
// an analysis message; the relay never blocks on the collaborator.
func (c *Controller) Analyze(ctx context.Context) bool {
	if c.senti == nil {
		return false
	}

	msgs := c.hist.Snapshot()
	// Outlive the triggering HTTP request; the collaborator may be slow.
	ctx = context.WithoutCancel(ctx)
	go func() {
		summary := c.senti.Analyze(ctx, msgs)
		outcome := "ok"
		if summary == sentiment.Unavailable {
			outcome = "unavailable"
		}
		metrics.AnalysisRequests.WithLabelValues(outcome).Inc()

		msg := protocol.NewSystemMessage(protocol.MessageAnalysis, summary)
		env, err := protocol.NewEnvelope(protocol.KindMessage, c.origin, msg)
		if err != nil {
			return
		}
		c.publish(context.Background(), env)
	}()
	return true
}
