// Package registry tracks the connections held by this process. Entries are
// owned exclusively by the process that accepted the socket; nothing here is
// shared across processes.
package registry

import (
	"sync"
	"time"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Conn is the write side of a registered connection. The relay's websocket
// session implements it; tests use fakes.
type Conn interface {
	WriteEnvelope(env *protocol.Envelope) error
	Ping() error
	Close() error
}

// Entry describes one locally held connection.
type Entry struct {
	UserID       string
	Role         protocol.Role
	Conn         Conn
	Alive        bool
	LastActivity time.Time
}

// Registry is the per-process user -> connection map. All mutations are
// serialized behind one mutex; register/unregister pairs racing across
// goroutines resolve to most-recent-registration-wins.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register records c as the connection for userID, replacing and closing any
// prior entry. Returns true if a stale connection was replaced.
func (r *Registry) Register(userID string, role protocol.Role, c Conn) bool {
	r.mu.Lock()
	prev, replaced := r.entries[userID]
	r.entries[userID] = &Entry{
		UserID:       userID,
		Role:         role,
		Conn:         c,
		Alive:        true,
		LastActivity: time.Now(),
	}
	r.mu.Unlock()

	if replaced {
		// Close outside the lock; Close may block on the transport.
		_ = prev.Conn.Close()
	}
	return replaced
}

// Unregister removes userID's entry only if c is still the registered
// connection. A reconnect that replaced the entry keeps its registration
// when the old connection's teardown finally runs. Returns true if the entry
// was removed.
func (r *Registry) Unregister(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.Conn != c {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the connection registered for userID, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.Conn, true
}

// ForEach calls f with a snapshot of every entry. f runs outside the lock so
// it may write to connections freely.
func (r *Registry) ForEach(f func(e Entry)) {
	r.mu.Lock()
	snapshot := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, *e)
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		f(e)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Touch marks userID's connection alive and bumps its activity timestamp.
// Any inbound traffic counts as an implicit heartbeat ack.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[userID]; ok {
		entry.Alive = true
		entry.LastActivity = time.Now()
	}
}

// MarkAllStale clears every entry's liveness flag. The heartbeat monitor
// calls this at the start of each probe cycle.
func (r *Registry) MarkAllStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		entry.Alive = false
	}
}

// Stale returns a snapshot of the entries whose liveness flag is still
// cleared from the previous probe cycle.
func (r *Registry) Stale() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []Entry
	for _, entry := range r.entries {
		if !entry.Alive {
			stale = append(stale, *entry)
		}
	}
	return stale
}
