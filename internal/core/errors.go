package core

import (
	"errors"

	"github.com/olegsharov/converse-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeNotAuthorized = "not_authorized"
	ErrCodeNotFound      = "not_found"
	ErrCodeValidation    = "validation"
	ErrCodeInvalidState  = "invalid_state"
	ErrCodeConflict      = "conflict"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternal      = "internal_error"
)

// CoreError wraps a code and human-readable message. It is always a scoped,
// per-action error: it is replied to the originating session only and never
// terminates the connection.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError converts any error into a CoreError suitable for a session
// reply. Store sentinels map onto the taxonomy; anything unexpected becomes a
// generic internal error so internals never leak to clients.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, store.ErrNotFound) {
		return coreError(ErrCodeNotFound, "not found")
	}
	if errors.Is(err, store.ErrConflict) {
		return coreError(ErrCodeConflict, "concurrent update, retry")
	}
	return coreError(ErrCodeInternal, "internal error")
}

// IsInternal reports whether the error mapped to the generic internal code.
func IsInternal(err *CoreError) bool {
	return err != nil && err.Code == ErrCodeInternal
}
