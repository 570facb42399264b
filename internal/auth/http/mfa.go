package http

import (
	"net/http"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
)

// MFAHandler serves the authenticated MFA management endpoints. Login-time
// challenges live on AuthHandler; everything here requires a valid access
// token.
type MFAHandler struct {
	Auth *service.AuthService
}

func authedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return "", false
	}
	return userID, true
}

// HandleEnroll handles POST /v1/auth/mfa/enroll. TOTP enrollment returns
// the secret, provisioning URL and backup codes; the email/SMS types
// dispatch a code to the destination instead.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Type   string `json:"type"`
		Rotate bool   `json:"rotate"`
		Phone  string `json:"phone"` // SMS destination, required on first sms_otp enrollment
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	switch req.Type {
	case domain.MethodTOTP, "":
		enroll, err := h.Auth.EnrollTOTP(r.Context(), userID, req.Rotate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, enroll)

	case domain.MethodEmailOTP, domain.MethodSMSOTP:
		if req.Type == domain.MethodSMSOTP && req.Phone != "" {
			if err := h.Auth.SetPhone(r.Context(), userID, req.Phone); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		if err := h.Auth.SendEnrollmentOTP(r.Context(), userID, req.Type); err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, map[string]bool{"sent": true})

	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown enrollment type")
	}
}

// HandleVerify handles POST /v1/auth/mfa/verify: confirming a pending TOTP
// enrollment with a code from the authenticator app.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Auth.VerifyTOTPEnrollment(r.Context(), userID, req.Code, requestMeta(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOTPSend handles POST /v1/auth/mfa/otp/send during channel enrollment.
func (h *MFAHandler) HandleOTPSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Method string `json:"method"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Auth.SendEnrollmentOTP(r.Context(), userID, req.Method); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// HandleOTPVerify handles POST /v1/auth/mfa/otp/verify: redeeming the sent
// code enables the channel as a login-time second factor.
func (h *MFAHandler) HandleOTPVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Method string `json:"method"`
		Code   string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Auth.VerifyEnrollmentOTP(r.Context(), userID, req.Method, req.Code, requestMeta(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles POST /v1/auth/mfa/disable: a full MFA reset.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Auth.DisableMFA(r.Context(), userID, requestMeta(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
