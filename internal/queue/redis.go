package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Backlogs are not durable storage; they expire if the recipient never
// returns.
const backlogTTL = 24 * time.Hour

// RedisQueue keeps each user's backlog in a sorted set scored by arrival
// time, so every relay process sees one logical queue.
type RedisQueue struct {
	client  *redis.Client
	session string
}

// NewRedisQueue creates a queue namespaced under the given session.
func NewRedisQueue(client *redis.Client, session string) *RedisQueue {
	return &RedisQueue{client: client, session: session}
}

// backlogKey returns the key for a user's offline backlog.
func (q *RedisQueue) backlogKey(userID string) string {
	return fmt.Sprintf("session:%s:offline:%s", q.session, userID)
}

// Enqueue appends msg to userID's backlog.
func (q *RedisQueue) Enqueue(ctx context.Context, userID string, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal offline message: %w", err)
	}

	key := q.backlogKey(userID)

	// Score by arrival nanos so Drain replays in arrival order even when
	// message timestamps collide.
	err = q.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue offline message: %w", err)
	}

	q.client.Expire(ctx, key, backlogTTL)
	return nil
}

// Drain returns userID's backlog in arrival order and clears it.
func (q *RedisQueue) Drain(ctx context.Context, userID string) ([]protocol.Message, error) {
	key := q.backlogKey(userID)

	pipe := q.client.TxPipeline()
	rangeCmd := pipe.ZRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain offline backlog: %w", err)
	}

	results := rangeCmd.Val()
	messages := make([]protocol.Message, 0, len(results))
	for _, data := range results {
		var msg protocol.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
