package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SessionCounter reports how many device sessions are live.
type SessionCounter interface {
	Len() int
}

type healthEnvelope struct {
	Message  string `json:"message"`
	Sessions int    `json:"sessions"`
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "action") != "ping" {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	env := healthEnvelope{Message: "pong"}
	if h.sessions != nil {
		env.Sessions = h.sessions.Len()
	}
	writeJSON(w, http.StatusOK, env)
}
