package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
)

// ErrorResponse is the wire shape of every error this API returns.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	httpx.WriteJSON(w, status, ErrorResponse{Error: code, Description: description})
}

// writeServiceError translates service sentinels into status codes. Anything
// unmapped is an internal error and stays opaque to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account_locked", "Account temporarily locked after repeated failures")
	case errors.Is(err, service.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account_disabled", "Account is disabled")
	case errors.Is(err, service.ErrUserExists):
		writeError(w, http.StatusConflict, "user_already_exists", "Username or email is already taken")
	case errors.Is(err, service.ErrInvalidRefresh):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "Refresh token is invalid or expired")
	case errors.Is(err, service.ErrReuseDetected):
		writeError(w, http.StatusUnauthorized, "refresh_reuse_detected", "Refresh reuse detected; session revoked")
	case errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid_code", "Code is invalid or expired")
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token", "Token is invalid or expired")
	case errors.Is(err, service.ErrAlreadyEnrolled):
		writeError(w, http.StatusBadRequest, "mfa_already_enrolled", "MFA is already enrolled; pass rotate to replace it")
	case errors.Is(err, service.ErrMFANotEnabled):
		writeError(w, http.StatusBadRequest, "mfa_not_enabled", "MFA is not enabled for this account")
	case errors.Is(err, service.ErrChannelUnavailable):
		writeError(w, http.StatusBadRequest, "otp_channel_unavailable", "Requested delivery channel is not available")
	case errors.Is(err, service.ErrResendCooldown):
		writeError(w, http.StatusTooManyRequests, "resend_cooldown", "A code was sent recently; wait before retrying")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "")
	}
}

const maxBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads a small JSON body into dst. Oversized or malformed input
// is a client error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return false
	}
	return true
}
