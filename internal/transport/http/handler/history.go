package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/growsmart/internal/application/history"
	"github.com/growsmart/internal/domain"
	"github.com/growsmart/internal/transport/http/middleware"
)

// HistoryEnvelope wraps history responses. On a failed removal or refresh
// History still carries the list as it now stands.
type HistoryEnvelope struct {
	History *history.Snapshot `json:"history,omitempty"`
	MessageEnvelope
}

type HistoryHandler struct {
	shells ShellSource
}

func NewHistoryHandler(shells ShellSource) *HistoryHandler { return &HistoryHandler{shells: shells} }

func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	snap, err := s.History(r.Context(), middleware.SubjectFromContext(r.Context()))
	writeHistory(w, snap, err)
}

func (h *HistoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	snap, err := s.RefreshHistory(r.Context(), middleware.SubjectFromContext(r.Context()))
	writeHistory(w, snap, err)
}

// Delete removes the entry at {index}; the id query parameter must name the
// entry the client saw there.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpError(w, domain.NewValidationError("history", "index must be an integer", "index"))
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	snap, err := s.RemoveEntry(r.Context(), middleware.SubjectFromContext(r.Context()), index, r.URL.Query().Get("id"))
	writeHistory(w, snap, err)
}

func writeHistory(w http.ResponseWriter, snap history.Snapshot, err error) {
	env := HistoryEnvelope{History: &snap}
	if err != nil {
		status, msg := errorEnvelope(err)
		env.MessageEnvelope = msg
		if status == http.StatusUnauthorized {
			env.History = nil
		}
		writeJSON(w, status, env)
		return
	}
	writeJSON(w, http.StatusOK, env)
}
