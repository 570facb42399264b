package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/jwtx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store  store.Store
	Cookie CookieConfig

	AuthService  *service.AuthService
	ResetService *service.PasswordResetService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerPasswordReset()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.AuthService, Cookie: r.Cookie}

	// POST /register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /login - strict rate limit by IP (authentication attempts)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /mfa/login - strict rate limit by IP (second factor attempts)
	r.Mux.Handle("POST /v1/auth/mfa/login",
		httpx.Chain(http.HandlerFunc(h.HandleMFALogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /refresh - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /me - authenticated, lenient rate limit by user
	securedMe := httpx.Chain(http.HandlerFunc(h.HandleMe),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)
	r.Mux.Handle("GET /v1/auth/me", securedMe)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{Auth: r.AuthService}

	// POST /mfa/enroll - moderate rate limit by user
	securedEnroll := httpx.Chain(http.HandlerFunc(h.HandleEnroll),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /mfa/verify - strict rate limit by user (prevent brute force of TOTP codes)
	securedVerify := httpx.Chain(http.HandlerFunc(h.HandleVerify),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// POST /mfa/otp/send - strict rate limit by user (delivery costs money)
	securedOTPSend := httpx.Chain(http.HandlerFunc(h.HandleOTPSend),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// POST /mfa/otp/verify - strict rate limit by user
	securedOTPVerify := httpx.Chain(http.HandlerFunc(h.HandleOTPVerify),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// POST /mfa/disable - moderate rate limit by user
	securedDisable := httpx.Chain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/auth/mfa/enroll", securedEnroll)
	r.Mux.Handle("POST /v1/auth/mfa/verify", securedVerify)
	r.Mux.Handle("POST /v1/auth/mfa/otp/send", securedOTPSend)
	r.Mux.Handle("POST /v1/auth/mfa/otp/verify", securedOTPVerify)
	r.Mux.Handle("POST /v1/auth/mfa/disable", securedDisable)
}

func (r *Router) registerPasswordReset() {
	h := &ResetHandler{Reset: r.ResetService}

	// POST /forgot - strict rate limit by IP + email (prevents mail bombing)
	r.Mux.Handle("POST /v1/auth/forgot",
		httpx.Chain(http.HandlerFunc(h.HandleForgot),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /reset - strict rate limit by IP (token guessing)
	r.Mux.Handle("POST /v1/auth/reset",
		httpx.Chain(http.HandlerFunc(h.HandleReset),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
