package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies inbox engine failures
type ErrorCode string

const (
	CodeNotReady        ErrorCode = "not_ready"
	CodeServiceDisabled ErrorCode = "service_disabled"
	CodeStorage         ErrorCode = "storage"
	CodeNetwork         ErrorCode = "network"
	CodeNotFound        ErrorCode = "not_found"
)

// InboxError is the error type returned by inbox operations
type InboxError struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *InboxError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *InboxError) Unwrap() error { return e.Cause }

// Is matches any InboxError with the same code, so the sentinels below work with errors.Is
func (e *InboxError) Is(target error) bool {
	t, ok := target.(*InboxError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrNotReady        = &InboxError{Code: CodeNotReady}
	ErrServiceDisabled = &InboxError{Code: CodeServiceDisabled}
	ErrStorage         = &InboxError{Code: CodeStorage}
	ErrNetwork         = &InboxError{Code: CodeNetwork}
	ErrNotFound        = &InboxError{Code: CodeNotFound}
)

// NotReady reports an operation issued before the engine was configured
func NotReady(op string) error {
	return &InboxError{Code: CodeNotReady, Op: op, Message: "inbox is not configured"}
}

// ServiceDisabled reports that the inbox feature is not entitled for this deployment
func ServiceDisabled(op string) error {
	return &InboxError{Code: CodeServiceDisabled, Op: op, Message: "inbox service is disabled"}
}

// Storage wraps a local persistence failure
func Storage(op string, cause error) error {
	return &InboxError{Code: CodeStorage, Op: op, Message: "local storage failure", Cause: cause}
}

// Network wraps a remote fetch failure
func Network(op string, cause error) error {
	return &InboxError{Code: CodeNetwork, Op: op, Message: "remote request failed", Cause: cause}
}

// NotFound reports an operation on an item that is no longer present
func NotFound(op, id string) error {
	return &InboxError{Code: CodeNotFound, Op: op, Message: fmt.Sprintf("inbox item %s not found", id)}
}

// CodeOf extracts the error code, or "" for foreign errors
func CodeOf(err error) ErrorCode {
	var ie *InboxError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
