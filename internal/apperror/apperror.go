// Package apperror defines the domain error taxonomy shared by every layer.
//
// Each constructor returns an *AppError whose Err field is one of the sentinel
// errors below, so callers branch with errors.Is and never on message text.
// Infrastructure failures keep their underlying cause in Cause for logging;
// the HTTP layer never echoes Cause to the client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthorized means no identity is attached to the request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemote means the OAuth provider was unreachable or answered with
	// something we could not use.
	ErrRemote = errors.New("remote error")

	// ErrStore covers connectivity and query-execution failures. A missing
	// row is never an ErrStore.
	ErrStore = errors.New("store error")

	// ErrIdentityInconsistent means a User exists without the ExternalIdentity
	// every login-created User must have.
	ErrIdentityInconsistent = errors.New("identity inconsistent")
)

type AppError struct {
	Err     error  // sentinel from this package
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for a request that carries no identity.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Remote wraps a failed call to the OAuth provider.
func Remote(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrRemote,
		Message: "github: " + op,
		Cause:   cause,
	}
}

// Store wraps a database failure. op describes what was being attempted,
// e.g. "finding user 7".
func Store(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStore,
		Message: "store: " + op,
		Cause:   cause,
	}
}

// IdentityInconsistent reports a User that has no linked ExternalIdentity.
func IdentityInconsistent(userID int64) *AppError {
	return &AppError{
		Err:     ErrIdentityInconsistent,
		Message: fmt.Sprintf("user %d has no linked external identity", userID),
	}
}
