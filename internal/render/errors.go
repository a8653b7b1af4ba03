package render

import (
	"errors"
	"fmt"
	"time"
)

// ErrArtifactNotFound is returned by Locate when no video file exists.
var ErrArtifactNotFound = errors.New("rendered video not found")

// FailureError reports a render that exited with a nonzero status.
type FailureError struct {
	Outcome Outcome
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("render exited with code %d: %s", e.Outcome.ExitCode, e.Outcome.Diagnostic())
}

// TimeoutError reports a render that was killed after Limit elapsed.
type TimeoutError struct {
	Outcome Outcome
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("render timed out after %s", e.Limit)
	if d := e.Outcome.Diagnostic(); d != "" {
		msg += ": " + d
	}
	return msg
}

// Err converts an outcome into the matching error, or nil on success.
func (o Outcome) Err(limit time.Duration) error {
	switch {
	case o.TimedOut:
		return &TimeoutError{Outcome: o, Limit: limit}
	case o.ExitCode != 0:
		return &FailureError{Outcome: o}
	}
	return nil
}
