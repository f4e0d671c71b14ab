package atlas

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the remote system has no measurement with the
// requested ID. It is wrapped by AccessError so callers can branch with
// errors.Is.
var ErrNotFound = errors.New("measurement not found")

// Credential resolution failures, wrapped by the %w returned from ReadKey.
var (
	ErrAuthFileNotFound = errors.New("authentication file not found")
	ErrAuthFileEmpty    = errors.New("authentication file empty")
)

// ConfigError reports conflicting or invalid selection criteria. It is
// raised before any network call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid measurement configuration: " + e.Reason
}

// SubmissionError reports that the creation request was rejected.
// Submission is attempted exactly once; there is no retry behind it.
type SubmissionError struct {
	StatusCode int // 0 for connection-level failures
	Reason     string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("measurement submission failed: status %d, reason %q", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("measurement submission failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// AllocationError reports that allocation polling failed or exhausted its
// attempt budget. The Measurement carrying the ID is still returned to the
// caller for manual follow-up.
type AllocationError struct {
	ID     int64
	Reason string
	Err    error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation query for measurement #%d failed: %s", e.ID, e.Reason)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// AccessError reports that an attach-mode status, probe, or metadata fetch
// failed. A not-found response wraps ErrNotFound.
type AccessError struct {
	ID  int64
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("cannot access measurement #%d: %v", e.ID, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// ResultError reports that results polling failed or never produced data.
type ResultError struct {
	ID     int64
	Reason string
	Err    error
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("results for measurement #%d: %s", e.ID, e.Reason)
}

func (e *ResultError) Unwrap() error { return e.Err }

// InternalError reports a status value outside the known vocabulary. It is
// always fatal: an unmodeled remote state must never be silently ignored.
type InternalError struct {
	ID     int64
	Status string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("unexpected status %q for measurement #%d", e.Status, e.ID)
}
