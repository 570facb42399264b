package http

import (
	"net/http"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/httpx"
)

// ReadyzHandler reports whether the service can take traffic, checking the
// database underneath.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		status := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
