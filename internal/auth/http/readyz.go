package http

import (
	"context"
	"net/http"
	"time"

	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/httpx"
)

// Pinger is implemented by session stores that live outside the database,
// such as the redis driver.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint returning service health status and checks for critical dependencies
//	@Description	Includes uptime, version, and status of the member database and the session store
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	sessions store.Sessions,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database: "ok",
			Sessions: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// sessions held in the database are covered by the ping above
		if p, ok := sessions.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				checks.Sessions = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		resp := healthResponse(startTime, version, overallStatus)
		resp.Checks = checks
		httpx.WriteJSON(w, statusCode, resp)
	}
}
