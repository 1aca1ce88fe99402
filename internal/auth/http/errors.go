package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
)

// kindStatus maps service error kinds to responses. The description
// defaults apply when the error carries no message.
var kindStatus = []struct {
	kind   error
	status int
	code   string
	desc   string
}{
	{service.ErrNotAuthorized, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized, "Not authorized"},
	{service.ErrForbidden, http.StatusForbidden, authsdk.ErrorCodeAccessDenied, "You are not allowed to perform this action"},
	{service.ErrNotFound, http.StatusNotFound, authsdk.ErrorCodeNotFound, "Resource not found"},
	{service.ErrAlreadyExists, http.StatusConflict, authsdk.ErrorCodeAlreadyExists, "Resource already exists"},
	{service.ErrDeletionConflict, http.StatusConflict, authsdk.ErrorCodeDeletionConflict, "Resource is still in use"},
	{service.ErrInvalidArgument, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid request"},
	{service.ErrTooManyRequests, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimited, "Too many requests. Please try again later."},
}

// toAPIError converts a service error. Anything unclassified is a 500 with
// a fixed description; the cause has already been logged by the service.
func toAPIError(err error) *authsdk.APIError {
	for _, k := range kindStatus {
		if errors.Is(err, k.kind) {
			desc := service.Message(err)
			if desc == "" {
				desc = k.desc
			}
			return authsdk.NewAPIError(k.status, k.code, desc)
		}
	}
	return authsdk.ErrServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError && !errors.Is(err, service.ErrServer) {
		slogx.FromContext(r.Context()).Error("unhandled error", "error", err)
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	apiErr.WriteError(w)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.DecodeJSON(r, dst)
	if err == nil {
		return true
	}

	var verr *httpx.ValidationError
	switch {
	case errors.As(err, &verr):
		authsdk.ValidationFailed(verr).WriteError(w)
	case errors.Is(err, httpx.ErrInvalidJSON):
		authsdk.ErrInvalidJSON.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request validation failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
	return false
}
