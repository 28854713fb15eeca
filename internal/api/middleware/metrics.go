package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/metrics"
)

// Metrics returns middleware that records Prometheus metrics. The wrapper
// must keep http.Hijacker visible or the websocket upgrade breaks, so it
// reuses chi's response writer.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// The route set is static (no path parameters), so paths are
		// recorded as-is without cardinality concerns.
		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, r.URL.Path, strconv.Itoa(ww.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, r.URL.Path,
		).Observe(time.Since(start).Seconds())
	})
}
