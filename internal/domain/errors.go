package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates a concurrent chat call against an adapter that
	// already has one in flight.
	ErrBusy = errors.New("chat already in progress")
	// ErrNotConfigured indicates a missing endpoint or API key.
	ErrNotConfigured = errors.New("backend not configured")
)

// UnreachableError indicates a network-level failure or timeout
// talking to a backend. Hint carries remediation steps for the user.
type UnreachableError struct {
	Backend BackendKind
	Hint    string
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s backend unreachable: %v (%s)", e.Backend, e.Err, e.Hint)
	}
	return fmt.Sprintf("%s backend unreachable: %v", e.Backend, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// UpstreamError indicates a non-2xx response from a backend. The
// status and body are preserved verbatim so the caller can show why
// the call failed.
type UpstreamError struct {
	Backend    BackendKind
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s backend returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}
