package client

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from a node.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	RequestID  string
	Context    map[string]any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dungeon: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("dungeon: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports a 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRejection reports a ledger-level rejection such as NotOwner or
// AlreadyDistributed. Retrying one never helps.
func (e *APIError) IsRejection() bool {
	switch e.Type {
	case "unauthorized", "invalid_state", "not_found", "paused", "invalid_input", "validation_error":
		return true
	}
	return false
}

// IsRetryable reports whether the same request may succeed later. Writes
// are only retried when the node cannot have applied them.
func (e *APIError) IsRetryable(method string) bool {
	if e.IsRejection() {
		return false
	}
	switch {
	case e.IsRateLimited(), e.StatusCode == http.StatusBadGateway:
		return true
	case method == http.MethodGet && e.StatusCode >= 500:
		return true
	}
	return false
}

// Is matches on the ledger error code, so errors.Is(err,
// &APIError{Code: "NotOwner"}) works.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.StatusCode != 0 && t.StatusCode == e.StatusCode
}
