package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/growsmart/internal/pkg/validate"
	"github.com/growsmart/internal/transport/http/middleware"
)

// IdentityService covers the provider-side flows that finish outside the app:
// confirming a mailed verification code and completing a password reset.
type IdentityService interface {
	ConfirmEmail(ctx context.Context, accountID, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type confirmEmailRequest struct {
	Code string `json:"code" validate:"required"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type IdentityHandler struct {
	svc IdentityService
}

func NewIdentityHandler(svc IdentityService) *IdentityHandler { return &IdentityHandler{svc: svc} }

// ConfirmEmail handles /confirm-email/{action}; the only action is "validate-code".
func (h *IdentityHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "action") != "validate-code" {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	var req confirmEmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct("confirm-email", &req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.ConfirmEmail(r.Context(), middleware.SubjectFromContext(r.Context()), req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email confirmed"})
}

func (h *IdentityHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct("reset-password", &req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}
