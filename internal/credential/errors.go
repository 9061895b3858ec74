// Package credential manages per-provider pools of API credentials with
// round-robin rotation on authorization and rate-limit failures. A pipeline
// step that talks to a cloud provider runs inside [Pool.WithRotation], which
// retries the operation with the next credential until one succeeds, a
// terminal error occurs, or the pool is exhausted.
package credential

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCredentialsExhausted is returned when every entry in the pool has been
// tried (or the pool is empty) and the operation still fails.
var ErrCredentialsExhausted = errors.New("credential: pool exhausted")

// ErrEmptyPool is reported when rotation is attempted on a pool that holds
// no entries. It matches [ErrCredentialsExhausted] in errors.Is checks, so
// callers that only care about "no usable credential" need a single test.
var ErrEmptyPool = fmt.Errorf("%w: pool is empty", ErrCredentialsExhausted)

// FailureClass buckets an operation error for rotation decisions.
type FailureClass int

const (
	// FailureTerminal is any error that rotation cannot fix: returned to the
	// caller immediately without trying another credential.
	FailureTerminal FailureClass = iota

	// FailureUnauthorized covers 401 and 403 responses.
	FailureUnauthorized

	// FailureRateLimited covers 429 responses.
	FailureRateLimited
)

// String returns the human-readable name of the failure class.
func (c FailureClass) String() string {
	switch c {
	case FailureTerminal:
		return "terminal"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Rotatable reports whether the class should advance the pool and retry.
func (c FailureClass) Rotatable() bool {
	return c == FailureUnauthorized || c == FailureRateLimited
}

// Classify maps an operation error to a [FailureClass]. It recognizes any
// error exposing a StatusCode() int method, which is the shape the provider
// adapters produce (types.StatusError).
func Classify(err error) FailureClass {
	if err == nil {
		return FailureTerminal
	}
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return classifyStatus(coded.StatusCode())
	}
	return FailureTerminal
}

func classifyStatus(code int) FailureClass {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureUnauthorized
	case http.StatusTooManyRequests:
		return FailureRateLimited
	default:
		return FailureTerminal
	}
}
