package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/metrics"
)

const connLimitWindow = time.Minute

// ConnLimiter bounds websocket connect attempts per client IP. Reconnect
// storms from a broken client would otherwise churn the registry and flood
// the fanout with presence transitions.
type ConnLimiter struct {
	client *redis.Client
	limit  int
	logger zerolog.Logger
}

// NewConnLimiter creates a limiter allowing limit connects per IP per
// minute. A nil client or non-positive limit disables limiting.
func NewConnLimiter(client *redis.Client, limit int, logger zerolog.Logger) *ConnLimiter {
	return &ConnLimiter{client: client, limit: limit, logger: logger}
}

// Middleware enforces the connect budget.
func (cl *ConnLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cl.client == nil || cl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := RealIP(r)
		key := fmt.Sprintf("connlimit:%s:%d", ip, time.Now().Unix()/int64(connLimitWindow.Seconds()))

		pipe := cl.client.Pipeline()
		countCmd := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, connLimitWindow)
		if _, err := pipe.Exec(r.Context()); err != nil {
			// The limiter is advisory; a lost backend never refuses
			// connections.
			next.ServeHTTP(w, r)
			return
		}

		if countCmd.Val() > int64(cl.limit) {
			metrics.ConnectionsRefused.WithLabelValues("rate_limited").Inc()
			cl.logger.Warn().
				Str("ip", ip).
				Int64("attempts", countCmd.Val()).
				Msg("connect rate limit exceeded")
			http.Error(w, `{"error":"too many connection attempts"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
