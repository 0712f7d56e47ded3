// Package pipeline consumes interaction and lifecycle events from the
// stream, applies them through the score engine and ranking index, and
// enforces the at-least-once contract: dedup, bounded retry, dead-letter.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrNonRetryable marks a processing failure that retrying cannot fix.
// Handlers wrap it when the event itself is the problem.
var ErrNonRetryable = errors.New("non-retryable processing error")

// MalformedEventError means the payload could not be decoded or failed
// structural validation. Malformed events go straight to the dead-letter
// stream without retry.
type MalformedEventError struct {
	Err error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %v", e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// Malformed wraps err as a MalformedEventError.
func Malformed(err error) error {
	return &MalformedEventError{Err: err}
}

// Retryable reports whether a processing error should be retried. Failures
// default to retryable; only errors the handler explicitly classified as
// malformed or non-retryable skip the retry budget.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var malformed *MalformedEventError
	if errors.As(err, &malformed) {
		return false
	}
	return !errors.Is(err, ErrNonRetryable)
}
