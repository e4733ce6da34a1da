package service

import (
	"errors"
	"fmt"
)

// Error codes carried by *Error.
const (
	CodePermissionDenied = "permission_denied"
	CodeUserNotFound     = "user_not_found"
	CodeUserNotDeleted   = "user_not_deleted"
	CodeUserDeleted      = "user_deleted"
	CodeUserBanned       = "user_banned"
	CodeInvalidDuration  = "invalid_duration"
	CodeInvalidInput     = "invalid_input"
	CodeInvalidLogin     = "invalid_credentials"
	CodeNotFound         = "not_found"
	CodeNoAdmin          = "no_admin"
	CodeConflict         = "conflict"
	CodeRestoreFailed    = "restore_failed"
	CodeUnexpected       = "unexpected_error"
)

// Error is a structured failure with a machine-readable code and a message
// meant for people.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

func wrapError(code, msg string, err error) *Error { return &Error{Code: code, Message: msg, Err: err} }

// ErrorCode returns the code of the first *Error in err's chain, or "".
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// SendError reports a message that could not be stored. Text is the input
// the caller should restore.
type SendError struct {
	ConversationID string
	Text           string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send message to conversation %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
