package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/growsmart/internal/app"
	"github.com/growsmart/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// StateEnvelope wraps every auth response. Bearer is set only by the step that
// signed the session in. On failure Error is set and State still reflects
// where the workflow landed.
type StateEnvelope struct {
	Bearer string     `json:"Bearer,omitempty"`
	State  *app.State `json:"state,omitempty"`
	MessageEnvelope
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps a domain error onto its status code and envelope.
func httpError(w http.ResponseWriter, err error) {
	status, env := errorEnvelope(err)
	writeJSON(w, status, env)
}

func errorEnvelope(err error) (int, MessageEnvelope) {
	status, kind := classify(err)
	env := MessageEnvelope{Error: err.Error(), Kind: kind}
	if status == http.StatusInternalServerError {
		slog.Error("unhandled error", "err", err)
		env.Error = "internal error"
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		env.Fields = ve.Fields
	}
	return status, env
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized, "authentication"
	case errors.Is(err, domain.ErrIntegrity):
		return http.StatusUnauthorized, "integrity"
	case errors.Is(err, domain.ErrSignedOut):
		return http.StatusUnauthorized, "signed_out"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrOutOfRange):
		return http.StatusConflict, "out_of_range"
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrInvalidResponse):
		return http.StatusBadGateway, "invalid_response"
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway, "transport"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// decode reads a JSON body into dst. An empty body leaves dst zeroed.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
