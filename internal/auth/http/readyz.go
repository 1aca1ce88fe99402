package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Returns 200 when the database answers a ping, 503 otherwise.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"database unreachable"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
			Version: version,
			Checks:  map[string]string{"database": "ok"},
		}
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			resp.Checks["database"] = "error: " + err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.NoCache(w)
		httpx.WriteJSON(w, code, resp)
	}
}
