package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/fanout"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/relay"
	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/roster"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	relay  *relay.Controller
	roster roster.Roster
	redis  *fanout.RedisFanout // nil when running on the in-memory bus
}

// NewHandler creates a new Handler.
func NewHandler(c *relay.Controller, ros roster.Roster, redis *fanout.RedisFanout) *Handler {
	return &Handler{relay: c, roster: ros, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
