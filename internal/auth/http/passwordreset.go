package http

import (
	"net/http"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
)

// ResetHandler serves the forgot/reset password flow.
type ResetHandler struct {
	Reset *service.PasswordResetService
}

// HandleForgot handles POST /v1/auth/forgot. The response never reveals
// whether the address exists.
func (h *ResetHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Email    string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	h.Reset.Request(r.Context(), tenantOrDefault(req.TenantID), req.Email)

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the account exists, a reset link has been sent",
	})
}

// HandleReset handles POST /v1/auth/reset: redeeming a mailed token for a
// new password.
func (h *ResetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"token and a password of at least 8 characters are required")
		return
	}

	if err := h.Reset.Reset(r.Context(), req.Token, req.Password, requestMeta(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
