package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/api"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/config"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/fanout"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/queue"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/relay"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/roster"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/sentiment"
)

const redisConnectAttempts = 5

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire the fanout backbone. Without REDIS_URL (development, smoke
	// tests) the process runs single-node on the in-memory bus.
	var (
		bus        fanout.Fanout
		redisBus   *fanout.RedisFanout
		msgQueue   queue.Queue
		onlineList roster.Roster
	)
	if cfg.RedisURL != "" {
		var err error
		redisBus, err = connectRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("fanout backend unreachable, retries exhausted")
		}
		defer redisBus.Close()
		bus = redisBus
		msgQueue = queue.NewRedisQueue(redisBus.Client(), cfg.Session)
		onlineList = roster.NewRedisRoster(redisBus.Client(), cfg.Session)
		logger.Info().Msg("connected to Redis fanout")
	} else {
		bus = fanout.NewMemoryFanout()
		msgQueue = queue.NewMemoryQueue()
		onlineList = roster.NewMemoryRoster()
		logger.Warn().Msg("no REDIS_URL, running single-node on in-memory fanout")
	}

	var sentimentClient *sentiment.Client
	if cfg.SentimentURL != "" {
		sentimentClient = sentiment.NewClient(cfg.SentimentURL, logger)
	}

	controller := relay.NewController(relay.Options{
		Session:           cfg.Session,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Queue:             msgQueue,
		Roster:            onlineList,
		Fanout:            bus,
		Sentiment:         sentimentClient,
		HistorySize:       cfg.HistorySize,
		Logger:            logger,
	})
	controller.Run(ctx)

	router := api.NewRouter(api.Options{
		Relay:        controller,
		Roster:       onlineList,
		Redis:        redisBus,
		ConnectLimit: cfg.ConnectLimit,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived websockets.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("session", cfg.Session).
			Str("origin", controller.Origin()).
			Msg("starting session relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down relay...")

	// Stops the heartbeat timer and the fanout subscription (ctx), then
	// closes every local connection.
	controller.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay stopped")
}

// connectRedis dials the fanout backend with backoff. Startup is the only
// place backend loss is fatal; at runtime the relay degrades to local-only.
func connectRedis(ctx context.Context, redisURL string, logger zerolog.Logger) (*fanout.RedisFanout, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 1; attempt <= redisConnectAttempts; attempt++ {
		bus, err := fanout.NewRedisFanout(ctx, redisURL, logger)
		if err == nil {
			return bus, nil
		}
		lastErr = err

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("redis connection failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}
