package handlers

import "net/http"

// Analyze triggers a sentiment analysis of the recent conversation. The
// work runs in the background; the result arrives as an analysis message on
// the session, so this returns 202 immediately.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if !h.relay.Analyze(r.Context()) {
		h.Error(w, http.StatusNotImplemented, "analysis not configured")
		return
	}
	h.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
