package roster

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRoster keeps the online set in the fanout's backing store so every
// process shares one view.
type RedisRoster struct {
	client  *redis.Client
	session string
}

// NewRedisRoster creates a roster namespaced under the given session.
func NewRedisRoster(client *redis.Client, session string) *RedisRoster {
	return &RedisRoster{client: client, session: session}
}

func (r *RedisRoster) key() string {
	return fmt.Sprintf("session:%s:online", r.session)
}

// MarkOnline adds userID to the online set.
func (r *RedisRoster) MarkOnline(ctx context.Context, userID string) error {
	return r.client.SAdd(ctx, r.key(), userID).Err()
}

// MarkOffline removes userID from the online set.
func (r *RedisRoster) MarkOffline(ctx context.Context, userID string) error {
	return r.client.SRem(ctx, r.key(), userID).Err()
}

// IsOnline reports whether userID is online on any process.
func (r *RedisRoster) IsOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.SIsMember(ctx, r.key(), userID).Result()
}

// Online returns every online user.
func (r *RedisRoster) Online(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, r.key()).Result()
}
