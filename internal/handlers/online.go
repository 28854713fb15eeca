package handlers

import "net/http"

// OnlineResponse lists the users online anywhere in the cluster.
type OnlineResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// Online handles the cluster-wide presence roster lookup.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.roster.Online(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "roster unavailable")
		return
	}
	if users == nil {
		users = []string{}
	}
	h.JSON(w, http.StatusOK, OnlineResponse{Users: users, Count: len(users)})
}
