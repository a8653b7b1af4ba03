// Package history records the outcome of every pipeline request.
package history

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/topic"
)

// Run sources.
const (
	SourceAPI = "api"
	SourceJob = "job"
	SourceMCP = "mcp"
	SourceCLI = "cli"
)

// RunStore persists runs.
type RunStore interface {
	SaveRun(r storage.Run) error
}

// Recorder writes one storage.Run per finished request. A nil Recorder or
// one without a store records nothing.
type Recorder struct {
	store  RunStore
	logger *slog.Logger
}

func NewRecorder(store RunStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record saves the outcome of ProcessTopic. Storage failures are logged and
// never returned: a lost history row must not fail a finished video.
func (r *Recorder) Record(source, topicText string, started time.Time, res pipeline.Result, err error) storage.Run {
	run := storage.Run{
		ID:         uuid.NewString(),
		Topic:      topicText,
		ModuleID:   topic.ModuleID(topicText),
		Source:     source,
		DurationMs: time.Since(started).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	var ex *pipeline.ExhaustedError
	switch {
	case err == nil:
		run.Status = storage.RunSucceeded
		run.Attempts = res.Attempts
		run.VideoPath = res.VideoPath
		run.FromCache = res.FromCache
	case errors.As(err, &ex):
		run.Status = storage.RunFailed
		run.Attempts = ex.Attempts
		run.LastOrigin = string(ex.Last.Origin)
		run.LastError = ex.Last.Text
	default:
		run.Status = storage.RunFailed
		run.LastError = err.Error()
	}

	if r == nil || r.store == nil {
		return run
	}
	if serr := r.store.SaveRun(run); serr != nil {
		r.logger.Error("saving run", "topic", topicText, "error", serr)
	}
	return run
}
