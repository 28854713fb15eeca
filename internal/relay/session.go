package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

const (
	// writeWait bounds a single frame write to a slow peer.
	writeWait = 10 * time.Second

	// sendBuffer is the per-connection outbound queue. A consumer that
	// falls this far behind is dropped rather than stalling dispatch.
	sendBuffer = 256
)

var errSendFull = errors.New("outbound buffer full")

// session is one accepted websocket connection. It implements
// registry.Conn. All websocket writes go through the write pump; Ping and
// Close use control frames, which gorilla allows concurrently.
type session struct {
	userID string
	role   protocol.Role
	ws     *websocket.Conn

	send chan *protocol.Envelope
	done chan struct{}
	once sync.Once
}

func newSession(userID string, role protocol.Role, ws *websocket.Conn) *session {
	return &session{
		userID: userID,
		role:   role,
		ws:     ws,
		send:   make(chan *protocol.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
}

// WriteEnvelope queues env for delivery. It never blocks: a full buffer
// means the peer is too slow and the caller should drop the connection.
func (s *session) WriteEnvelope(env *protocol.Envelope) error {
	select {
	case <-s.done:
		return errors.New("session closed")
	case s.send <- env:
		return nil
	default:
		return errSendFull
	}
}

// Ping sends a transport-level liveness probe.
func (s *session) Ping() error {
	return s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close tears the connection down. Idempotent; the underlying close also
// unblocks the read pump.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ws.Close()
	})
	return err
}

// writePump serializes all data frames onto the websocket. It exits when
// the session closes or a write fails.
func (s *session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteJSON(env); err != nil {
				s.Close()
				return
			}
		}
	}
}
