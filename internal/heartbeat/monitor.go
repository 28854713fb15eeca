// Package heartbeat evicts connections that stop answering liveness probes.
// The probe here is transport-level ping/pong; it is unrelated to the
// client-driven latency_probe envelope.
package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/registry"
)

// Evictor is called for each connection that missed a full probe cycle.
// The relay controller unregisters the entry and emits offline presence.
type Evictor func(e registry.Entry)

// Monitor drives the probe cycle: every interval it evicts entries still
// stale from the previous cycle, then clears all liveness flags and pings
// every connection. A dead peer holds its slot for at most two intervals.
type Monitor struct {
	reg      *registry.Registry
	interval time.Duration
	evict    Evictor
	logger   zerolog.Logger
}

// New creates a monitor over reg. evict must be safe to call from the
// monitor goroutine.
func New(reg *registry.Registry, interval time.Duration, evict Evictor, logger zerolog.Logger) *Monitor {
	return &Monitor{reg: reg, interval: interval, evict: evict, logger: logger}
}

// Run loops until ctx is cancelled. On return the ticker is stopped; no
// further probes or evictions happen.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	for _, entry := range m.reg.Stale() {
		m.logger.Warn().
			Str("user_id", entry.UserID).
			Time("last_activity", entry.LastActivity).
			Msg("heartbeat missed, evicting connection")
		m.evict(entry)
	}

	m.reg.MarkAllStale()
	m.reg.ForEach(func(e registry.Entry) {
		if err := e.Conn.Ping(); err != nil {
			m.logger.Debug().
				Str("user_id", e.UserID).
				Err(err).
				Msg("liveness probe write failed")
		}
	})
}
