package core

import "errors"

// Error kinds. Every CoreError unwraps to exactly one of these.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
)

// Error codes for domain errors.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeSelfConversation = "self_conversation"
	ErrCodeEmptyMessage     = "empty_message"
	ErrCodeMessageTooLong   = "message_too_long"
	ErrCodeNotParticipant   = "not_participant"
	ErrCodeNotSender        = "not_sender"
	ErrCodeNotRecipient     = "not_recipient"
	ErrCodeMessageDeleted   = "message_deleted"
	ErrCodeUnknownType      = "unknown_type"
	ErrCodeRateLimited      = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Kind    error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Kind
}

// Validation reports rejected input. No state has been written.
func Validation(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Kind: ErrValidation}
}

// Forbidden reports an authorization failure.
func Forbidden(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Kind: ErrAuthorization}
}

// NotFound reports an unknown identifier.
func NotFound(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Kind: ErrNotFound}
}

// Unauthenticated reports a credential problem.
func Unauthenticated(msg string) *CoreError {
	return &CoreError{Code: ErrCodeUnauthorized, Message: msg, Kind: ErrAuthentication}
}

// CodeOf extracts the code of a CoreError, or "" for anything else.
func CodeOf(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
