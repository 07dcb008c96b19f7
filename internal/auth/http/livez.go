package http

import (
	"net/http"
	"time"

	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/httpx"
)

func healthResponse(start time.Time, version, status string) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(start).Round(time.Second).String(),
		Version: version,
	}
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Answers 200 as long as the process can serve HTTP. Touches no dependency.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(start time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse(start, version, "ok"))
	}
}
