package types

import "fmt"

// StatusError carries the HTTP status of a failed provider call. Adapters
// wrap SDK errors into this type so callers can react to specific statuses
// (credential rotation keys off 401, 403 and 429) without importing any SDK.
type StatusError struct {
	// Code is the HTTP status code of the failed request.
	Code int

	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("status %d", e.Code)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }
