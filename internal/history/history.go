// Package history keeps a bounded in-memory window of recent room messages.
// It feeds the sentiment collaborator; it is not chat persistence.
package history

import (
	"sync"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Log is a fixed-capacity circular buffer of messages. When full, Append
// overwrites the oldest entry. Safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []protocol.Message
	head  int
	count int
}

// NewLog creates a log holding at most capacity messages.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{buf: make([]protocol.Message, capacity)}
}

// Append records msg, overwriting the oldest entry if full.
func (l *Log) Append(msg protocol.Message) {
	l.mu.Lock()
	idx := (l.head + l.count) % len(l.buf)
	l.buf[idx] = msg
	if l.count == len(l.buf) {
		l.head = (l.head + 1) % len(l.buf)
	} else {
		l.count++
	}
	l.mu.Unlock()
}

// Snapshot returns a copy of the window, oldest first.
func (l *Log) Snapshot() []protocol.Message {
	l.mu.RLock()
	out := make([]protocol.Message, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	l.mu.RUnlock()
	return out
}

// Len returns the number of messages stored.
func (l *Log) Len() int {
	l.mu.RLock()
	n := l.count
	l.mu.RUnlock()
	return n
}
