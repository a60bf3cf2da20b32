package chain

import (
	"errors"
	"fmt"
)

// Kind is the coarse error taxonomy shared by every component.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnauthorized Kind = "unauthorized"
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
	KindPaused       Kind = "paused"
)

// Error is returned by every rejected ledger operation. Rejections are
// synchronous and leave no partial effect behind.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// NewError creates a sentinel error value for a package's errors.go.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so wrapped or re-messaged copies still compare equal
// to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy carrying a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, or "" when err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf extracts the Code of err, or "" when err is not a ledger error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common errors shared by several components.
var (
	ErrUnauthorized   = NewError(KindUnauthorized, "Unauthorized", "caller is not allowed to perform this operation")
	ErrInvalidAddress = NewError(KindInvalidInput, "InvalidAddress", "address must not be the zero address")
	ErrInvalidAmount  = NewError(KindInvalidInput, "InvalidAmount", "amount must be greater than zero")
	ErrInsufficient   = NewError(KindInvalidState, "InsufficientBalance", "balance too low for transfer")
	ErrHalted         = NewError(KindPaused, "Paused", "operation halted by administrator")
)
