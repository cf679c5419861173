package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure kind.
type Code string

const (
	CodeNotConnected          Code = "NOT_CONNECTED"
	CodeAuthRejected          Code = "AUTH_REJECTED"
	CodeTransportLost         Code = "TRANSPORT_LOST"
	CodeMalformedPayload      Code = "MALFORMED_PAYLOAD"
	CodeUploadFailed          Code = "UPLOAD_FAILED"
	CodeSendAfterUploadFailed Code = "SEND_AFTER_UPLOAD_FAILED"
	CodeEmpty                 Code = "EMPTY"
	CodeSessionClosed         Code = "SESSION_CLOSED"
)

// Error carries a Code plus an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Code, so errors.Is(err, ErrNotConnected)
// holds for wrapped variants too.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the Code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

var (
	ErrNotConnected          = NewError(CodeNotConnected, "not connected")
	ErrAuthRejected          = NewError(CodeAuthRejected, "authentication rejected")
	ErrTransportLost         = NewError(CodeTransportLost, "transport lost")
	ErrMalformedPayload      = NewError(CodeMalformedPayload, "malformed payload")
	ErrUploadFailed          = NewError(CodeUploadFailed, "upload failed")
	ErrSendAfterUploadFailed = NewError(CodeSendAfterUploadFailed, "send failed after upload")
	ErrEmpty                 = NewError(CodeEmpty, "message content is empty")
	ErrSessionClosed         = NewError(CodeSessionClosed, "session closed")
)
