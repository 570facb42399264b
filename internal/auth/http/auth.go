package http

import (
	"net/http"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
)

// AuthHandler serves the core login/refresh/logout surface.
type AuthHandler struct {
	Auth   *service.AuthService
	Cookie CookieConfig
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}

// tenantOrDefault lets single-tenant deployments omit the field entirely.
func tenantOrDefault(tenantID string) string {
	if tenantID == "" {
		return "default"
	}
	return tenantID
}

type userResponse struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	MFAEnabled bool      `json:"mfa_enabled"`
	MFAMethods []string  `json:"mfa_methods,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:         u.ID,
		TenantID:   u.TenantID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		MFAEnabled: u.MFAEnabled,
		MFAMethods: u.MFAMethods(),
		CreatedAt:  u.CreatedAt,
	}
}

type tokenResponse struct {
	domain.TokenPair
	User *userResponse `json:"user,omitempty"`
}

// writeTokens sends a pair to the client and mirrors the refresh token into
// the scoped cookie for browser clients.
func (h *AuthHandler) writeTokens(w http.ResponseWriter, pair domain.TokenPair, user *userResponse) {
	setRefreshCookie(w, h.Cookie, pair.RefreshToken, h.Auth.Sessions.RefreshTTL)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

// HandleRegister handles POST /v1/auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"username, email and a password of at least 8 characters are required")
		return
	}

	user, err := h.Auth.Register(r.Context(), tenantOrDefault(req.TenantID), req.Username, req.Email, req.Password, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := toUserResponse(user)
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /v1/auth/login. The response is either a token
// pair or an MFA challenge, never both.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.Auth.Login(r.Context(), tenantOrDefault(req.TenantID), req.Username, req.Password, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.Challenge != nil {
		httpx.WriteJSON(w, http.StatusOK, res.Challenge)
		return
	}

	resp := toUserResponse(res.User)
	h.writeTokens(w, *res.Pair, &resp)
}

// HandleMFALogin handles POST /v1/auth/mfa/login. For the email/SMS methods
// an empty code means "send me one": the code is dispatched and the client
// calls again with it.
func (h *AuthHandler) HandleMFALogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MFAToken string `json:"mfa_token"`
		Method   string `json:"method"`
		Code     string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MFAToken == "" || req.Method == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "mfa_token and method are required")
		return
	}

	if req.Code == "" && (req.Method == domain.MethodEmailOTP || req.Method == domain.MethodSMSOTP) {
		if err := h.Auth.SendLoginOTP(r.Context(), req.MFAToken, req.Method); err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
		return
	}

	pair, err := h.Auth.CompleteMFALogin(r.Context(), req.MFAToken, req.Method, req.Code, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeTokens(w, pair, nil)
}

// HandleRefresh handles POST /v1/auth/refresh. The refresh token arrives in
// the "rt" cookie or the request body.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	token := refreshTokenFrom(r, req.RefreshToken)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "No refresh token presented")
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), token, requestMeta(r))
	if err != nil {
		clearRefreshCookie(w, h.Cookie)
		writeServiceError(w, r, err)
		return
	}

	h.writeTokens(w, pair, nil)
}

// HandleLogout handles POST /v1/auth/logout. Always succeeds; logging out
// twice or with a dead token is fine.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if token := refreshTokenFrom(r, req.RefreshToken); token != "" {
		if err := h.Auth.Logout(r.Context(), token, requestMeta(r)); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	clearRefreshCookie(w, h.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/auth/me for the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	user, err := h.Auth.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}
