package pipeline

import (
	"errors"
	"fmt"
)

// ErrExhausted matches every *ExhaustedError.
var ErrExhausted = errors.New("attempts exhausted")

// Origin names the stage a failure came from.
type Origin string

const (
	OriginGenerate Origin = "generate"
	OriginParse    Origin = "parse"
	OriginRender   Origin = "render"
	OriginTimeout  Origin = "timeout"
	OriginArtifact Origin = "artifact"
	OriginIO       Origin = "io"
)

// LastError is the most recent failure seen by the attempt loop.
type LastError struct {
	Origin Origin
	Text   string
}

func (e LastError) String() string {
	if e.Origin == "" {
		return e.Text
	}
	return fmt.Sprintf("[%s] %s", e.Origin, e.Text)
}

// ExhaustedError is returned when no attempt produced a video. Last.Text is
// the final diagnostic, unmodified.
type ExhaustedError struct {
	Topic    string
	Attempts int
	Last     LastError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no video for %q after %d attempts: %s", e.Topic, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}
