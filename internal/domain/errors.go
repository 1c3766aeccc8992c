package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Terminal I/O failures are the only class allowed to end a
// session; analysis-pipeline failures stay on the event bus.
var (
	// ErrServiceUnavailable: inference health check failed or connection refused.
	ErrServiceUnavailable = errors.New("inference service unavailable")
	// ErrTimeout: inference call exceeded its deadline; retryable.
	ErrTimeout = errors.New("inference call timed out")
	// ErrMalformedResponse: inference output could not be structurally parsed.
	ErrMalformedResponse = errors.New("malformed inference response")
)

// ProcessError reports child spawn/signal failure. Fatal to the session.
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// IOError reports a pseudo-terminal read/write failure. The session moves to
// stopped instead of crashing the process.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pty %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
