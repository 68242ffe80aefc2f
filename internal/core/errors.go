package core

import "errors"

// Error codes for domain errors reported to clients.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeInvalidRoom         = "invalid_room"
	ErrCodeReservedRoom        = "reserved_room"
	ErrCodeEmptyContent        = "empty_content"
	ErrCodeContentTooLong      = "content_too_long"
	ErrCodeNotInRoom           = "not_in_room"
	ErrCodeInvalidNotification = "invalid_notification"
	ErrCodeForbidden           = "forbidden"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeUnknownEvent        = "unknown_event"
	ErrCodeInternal            = "internal"
)

var (
	// ErrAlreadyAdmitted is returned when a connection id is admitted twice.
	ErrAlreadyAdmitted = errors.New("connection already admitted")
	// ErrUnknownConnection is returned for commands from a connection that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrHubStopped is returned when the hub loop is no longer running.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
// It is the validation error of the realtime layer: the offending event is
// dropped and the error is reported to its sender only.
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
