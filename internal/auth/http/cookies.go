package http

import (
	"net/http"
	"time"
)

// refreshCookieName carries the refresh token for browser clients. Non-browser
// clients may instead pass the token in the request body.
const refreshCookieName = "rt"

// CookieConfig controls the refresh cookie's scope.
type CookieConfig struct {
	// Path scopes the cookie to the auth endpoints so it never rides along
	// on ordinary API calls.
	Path string

	// Secure should only be false in local development.
	Secure bool
}

func (c CookieConfig) path() string {
	if c.Path != "" {
		return c.Path
	}
	return "/v1/auth"
}

func setRefreshCookie(w http.ResponseWriter, cfg CookieConfig, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     cfg.path(),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     cfg.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFrom pulls the refresh token from the cookie, falling back to
// an explicit body value.
func refreshTokenFrom(r *http.Request, bodyToken string) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return bodyToken
}
