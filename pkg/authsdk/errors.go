package authsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// Error codes carried in ErrorResponse.Error.
const (
	ErrorCodeInvalidRequest   = "invalid_request"
	ErrorCodeValidation       = "validation_error"
	ErrorCodeNotAuthorized    = "not_authorized"
	ErrorCodeInvalidToken     = "invalid_token"
	ErrorCodeAccessDenied     = "access_denied"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeAlreadyExists    = "already_exists"
	ErrorCodeDeletionConflict = "deletion_conflict"
	ErrorCodeRateLimited      = "rate_limit_exceeded"
	ErrorCodeServerError      = "server_error"
)

// APIError is a non-2xx response. The server writes it with WriteError and
// the client decodes every failed call into one.
type APIError struct {
	StatusCode  int                `json:"-"`
	Code        string             `json:"error"`
	Description string             `json:"error_description"`
	Fields      []httpx.FieldError `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as an ErrorResponse.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
		Fields:           e.Fields,
	})
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidJSON = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request body is not valid JSON",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "An unexpected error occurred",
	}
)

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// ValidationFailed builds the 400 response for a failed request body.
func ValidationFailed(verr *httpx.ValidationError) *APIError {
	return &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeValidation,
		Description: verr.Error(),
		Fields:      verr.Fields,
	}
}
