package handler

import (
	"net/http"

	"github.com/growsmart/internal/app"
	"github.com/growsmart/internal/application/auth"
	"github.com/growsmart/internal/domain"
	"github.com/growsmart/internal/pkg/validate"
	"github.com/growsmart/internal/transport/http/middleware"
)

// ShellSource hands out the app shell owned by a device.
type ShellSource interface {
	Shell(deviceID string) (*app.Shell, error)
}

type otpRequest struct {
	Code string `json:"code" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// AuthHandler exposes the sign-in, sign-up and sign-out workflow of a device's shell.
type AuthHandler struct {
	shells ShellSource
}

func NewAuthHandler(shells ShellSource) *AuthHandler { return &AuthHandler{shells: shells} }

// State reports where the workflow stands. It never carries the identity token.
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	writeState(w, s.State(), "", nil)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req auth.SignInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct("sign-in", &req); err != nil {
		httpError(w, err)
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	st, err := s.SignIn(r.Context(), req)
	writeState(w, st, issued(s, st, err), err)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct("sign-up", &req); err != nil {
		httpError(w, err)
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	st, err := s.SignUp(r.Context(), req)
	writeState(w, st, issued(s, st, err), err)
}

func (h *AuthHandler) ConfirmOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct("otp", &req); err != nil {
		httpError(w, err)
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	st, err := s.ConfirmOTP(r.Context(), req.Code)
	writeState(w, st, issued(s, st, err), err)
}

func (h *AuthHandler) CancelOTP(w http.ResponseWriter, r *http.Request) {
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	st, err := s.CancelOTP()
	writeState(w, st, "", err)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	if err := s.ForgotPassword(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password reset email sent"})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	s, ok := shellOrError(w, h.shells, r)
	if !ok {
		return
	}
	st, err := s.SignOut()
	writeState(w, st, "", err)
}

func shellFor(shells ShellSource, r *http.Request) (*app.Shell, error) {
	id, _ := middleware.DeviceFromContext(r.Context())
	return shells.Shell(id)
}

// shellOrError writes the error response itself when no shell is available.
func shellOrError(w http.ResponseWriter, shells ShellSource, r *http.Request) (*app.Shell, bool) {
	s, err := shellFor(shells, r)
	if err != nil {
		httpError(w, err)
		return nil, false
	}
	return s, true
}

// issued returns the identity token for a step that just signed the session in.
func issued(s *app.Shell, st app.State, err error) string {
	if err != nil || (st.State != domain.StateSignedIn && st.State != domain.StateSignedInIncomplete) {
		return ""
	}
	return s.Token()
}

// writeState renders the shell state. A failed step still reports where the
// workflow landed alongside the error.
func writeState(w http.ResponseWriter, st app.State, bearer string, err error) {
	env := StateEnvelope{State: &st, Bearer: bearer}
	if err != nil {
		status, msg := errorEnvelope(err)
		env.MessageEnvelope = msg
		writeJSON(w, status, env)
		return
	}
	writeJSON(w, http.StatusOK, env)
}
