package queue

import (
	"context"
	"sync"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// MemoryQueue is a process-local Queue. Used when the fanout backend is
// unavailable (degraded local-only mode) and in tests. Contents are lost on
// restart.
type MemoryQueue struct {
	mu       sync.Mutex
	backlogs map[string][]protocol.Message
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{backlogs: make(map[string][]protocol.Message)}
}

// Enqueue appends msg to userID's backlog.
func (q *MemoryQueue) Enqueue(_ context.Context, userID string, msg protocol.Message) error {
	q.mu.Lock()
	q.backlogs[userID] = append(q.backlogs[userID], msg)
	q.mu.Unlock()
	return nil
}

// Drain returns userID's backlog in arrival order and clears it.
func (q *MemoryQueue) Drain(_ context.Context, userID string) ([]protocol.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	backlog := q.backlogs[userID]
	delete(q.backlogs, userID)
	return backlog, nil
}
