package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/trackr/pkg/slogx"
)

// Error kinds. Every error a service returns matches exactly one of these
// with errors.Is.
var (
	ErrNotAuthorized    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrForbidden        = errors.New("forbidden")
	ErrDeletionConflict = errors.New("deletion conflict")
	ErrTooManyRequests  = errors.New("too many requests")
	ErrServer           = errors.New("internal server error")
)

// Error carries a user-facing message alongside its kind and, for server
// errors, the underlying cause. The cause is never shown to callers.
type Error struct {
	Kind     error
	Resource string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, resource, format string, args ...any) *Error {
	return &Error{Kind: kind, Resource: resource, Message: fmt.Sprintf(format, args...)}
}

func notAuthorized(resource, format string, args ...any) error {
	return newError(ErrNotAuthorized, resource, format, args...)
}

func notFound(resource, format string, args ...any) error {
	return newError(ErrNotFound, resource, format, args...)
}

func alreadyExists(resource, format string, args ...any) error {
	return newError(ErrAlreadyExists, resource, format, args...)
}

func invalidArgument(resource, format string, args ...any) error {
	return newError(ErrInvalidArgument, resource, format, args...)
}

// serverError logs err and hides it behind a generic ServerError.
func serverError(ctx context.Context, msg string, err error) error {
	slogx.FromContext(ctx).Error(msg, slog.Any("error", err))
	return &Error{Kind: ErrServer, Message: "An unexpected error occurred", Err: err}
}

// passthrough keeps already-classified errors and turns anything else into
// a logged ServerError.
func passthrough(ctx context.Context, msg string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return serverError(ctx, msg, err)
}

// Message returns the user-facing text of err, or "" for unclassified errors.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) && !errors.Is(se.Kind, ErrServer) {
		return se.Message
	}
	return ""
}
