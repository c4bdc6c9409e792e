package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound  = "room_not_found"
	ErrCodeValidation    = "validation_error"
	ErrCodePersistence   = "persistence_error"
	ErrCodeSessionClosed = "session_closed"
	ErrCodeBadRequest    = "bad_request"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrSessionClosed = errors.New("session closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	cause   error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.cause
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func wrapError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, cause: cause}
}

// ErrorCode extracts the domain error code from err, or bad_request if err
// carries no CoreError.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeBadRequest
}
