package httpx

import (
	"net/http"
	"strings"
)

// RequireRole allows the request through only when the authenticated
// principal's role matches one of the listed roles exactly. Role semantics
// are plain string equality - there is no hierarchy.
func RequireRole(allowed ...string) Middleware {
	want := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		want[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := want[roleFromCtx(r.Context())]; ok {
				next.ServeHTTP(w, r)
				return
			}

			writeBearerRoleError(w, allowed...)
		})
	}
}

// RequireMFA allows the request through only when the access token asserts
// that multi-factor authentication was satisfied for the session.
func RequireMFA() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := ClaimsFromContext(r.Context()); ok && claims.MFA {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_authentication", error_description="mfa required"`)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("mfa_required"))
		})
	}
}

// RFC 6750-style error response for role failures.
func writeBearerRoleError(w http.ResponseWriter, allowed ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_role", role="`+strings.Join(allowed, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_role"))
}
