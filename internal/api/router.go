package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/api/middleware"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/fanout"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/handlers"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/relay"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/roster"
)

// Options carries the router's dependencies.
type Options struct {
	Relay        *relay.Controller
	Roster       roster.Roster
	Redis        *fanout.RedisFanout // nil when running on the in-memory bus
	ConnectLimit int
	Logger       zerolog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// CORS - clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Relay, opts.Roster, opts.Redis)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)
	r.Get("/api/online", h.Online)
	r.Post("/api/analyze", h.Analyze)

	// The websocket accept path carries the connect rate limit.
	var redisClient *redis.Client
	if opts.Redis != nil {
		redisClient = opts.Redis.Client()
	}
	limiter := middleware.NewConnLimiter(redisClient, opts.ConnectLimit, opts.Logger)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Get("/ws", opts.Relay.HandleWS)
	})

	return r
}
