package verifier

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureReason explains an unsuccessful verification outcome.
type FailureReason string

const (
	FailureNone      FailureReason = ""
	FailureNotFound  FailureReason = "not_found"
	FailureTimeout   FailureReason = "timeout"
	FailureAuth      FailureReason = "auth_failure"
	FailureTransport FailureReason = "transport_error"
	FailureCancelled FailureReason = "cancelled"
)

// Outcome is the result of one full verification call. Only Outcome crosses
// the engine boundary; raw transport errors never do.
type Outcome struct {
	// Code is the extracted 6-digit code, empty on failure.
	Code string

	// FailureReason is set when Code is empty.
	FailureReason FailureReason

	// ConsumedMessageID is the backend identifier of the message the code
	// was read from. Empty when no code was found or cleanup did not apply.
	ConsumedMessageID string
}

// Found reports whether a code was captured.
func (o Outcome) Found() bool {
	return o.Code != ""
}

// ErrAuthFailed marks credential rejection by a backend. Credentials will not
// become valid mid-loop, so the engine stops retrying when it sees this.
var ErrAuthFailed = errors.New("authentication rejected")

func authFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrAuthFailed, err)
}

// classify translates an attempt error into the outcome taxonomy.
func classify(err error) FailureReason {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrAuthFailed):
		return FailureAuth
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	default:
		return FailureTransport
	}
}
