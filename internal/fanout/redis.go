package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

const (
	resubscribeMin = time.Second
	resubscribeMax = 30 * time.Second
)

// RedisFanout backs the bus with Redis pub/sub. A lost backend connection
// puts the process in degraded local-only mode: Publish returns errors the
// caller logs and tolerates, and the subscription loop keeps retrying with
// backoff until the backend returns. The accept loop is never affected.
type RedisFanout struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisFanout verifies the backend is reachable and returns the fanout.
func NewRedisFanout(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisFanout, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisFanout{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for components that share the
// fanout's backing store (offline queue, roster, connect limiter).
func (f *RedisFanout) Client() *redis.Client {
	return f.client
}

// Ping checks the backend connection.
func (f *RedisFanout) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close closes the backend connection.
func (f *RedisFanout) Close() error {
	return f.client.Close()
}

// Publish sends env to channel.
func (f *RedisFanout) Publish(ctx context.Context, channel string, env *protocol.Envelope) error {
	data, err := env.Bytes()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := f.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe consumes channel until ctx is cancelled, re-establishing the
// subscription with exponential backoff whenever the backend drops it.
func (f *RedisFanout) Subscribe(ctx context.Context, channel string, h Handler) error {
	backoff := resubscribeMin

	for {
		if err := f.consume(ctx, channel, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error().
				Err(err).
				Str("channel", channel).
				Dur("retry_in", backoff).
				Msg("fanout subscription lost, serving local-only")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > resubscribeMax {
			backoff = resubscribeMax
		}
	}
}

func (f *RedisFanout) consume(ctx context.Context, channel string, h Handler) error {
	pubsub := f.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Confirm the subscription before reading the message channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	f.logger.Info().Str("channel", channel).Msg("fanout subscription established")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			env, err := protocol.Decode([]byte(msg.Payload))
			if err != nil {
				f.logger.Warn().Err(err).Msg("dropping undecodable fanout envelope")
				continue
			}
			h(env)
		}
	}
}
