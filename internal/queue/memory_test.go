package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

func msg(id, content string) protocol.Message {
	return protocol.Message{ID: id, SenderID: "u1", Content: content, Kind: protocol.MessageText}
}

func TestMemoryQueueDrainPreservesArrivalOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, "u2", msg(fmt.Sprintf("m%d", i), fmt.Sprintf("body %d", i))))
	}

	drained, err := q.Drain(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, drained, 10)
	for i, m := range drained {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

func TestMemoryQueueDrainClears(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "u2", msg("a", "first")))

	first, err := q.Drain(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := q.Drain(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, second, "drain must clear the backlog")
}

func TestMemoryQueuePerUserIsolation(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "u2", msg("a", "for u2")))
	require.NoError(t, q.Enqueue(ctx, "u3", msg("b", "for u3")))

	forU2, err := q.Drain(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, forU2, 1)
	assert.Equal(t, "a", forU2[0].ID)

	forU3, err := q.Drain(ctx, "u3")
	require.NoError(t, err)
	require.Len(t, forU3, 1)
	assert.Equal(t, "b", forU3[0].ID)
}
