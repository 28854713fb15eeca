// Package queue buffers messages for recipients with no live connection
// anywhere in the system, and replays them in arrival order on reconnect.
package queue

import (
	"context"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Queue is the offline backlog. RedisQueue backs it with the fanout's store
// so any process can deliver on behalf of any other; MemoryQueue serves
// single-node and degraded runs.
type Queue interface {
	// Enqueue appends msg to userID's backlog.
	Enqueue(ctx context.Context, userID string, msg protocol.Message) error

	// Drain returns userID's backlog in arrival order and clears it.
	Drain(ctx context.Context, userID string) ([]protocol.Message, error)
}
