// Package worker runs queued video generation jobs in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/topic"
)

// JobTypeGenerateVideo is the job type handled by Worker.
const JobTypeGenerateVideo = "generate_video"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id string, errMsg string) error
}

// Processor turns a topic into a video.
type Processor interface {
	ProcessTopic(ctx context.Context, topic string) (pipeline.Result, error)
}

// Payload is the job body for JobTypeGenerateVideo.
type Payload struct {
	Topic string `json:"topic"`
}

// NewGenerateJob builds a queue entry for topic. Jobs run once: the
// pipeline already bounds its own retries.
func NewGenerateJob(topicText string) (storage.Job, error) {
	topicText = strings.TrimSpace(topicText)
	if err := topic.Validate(topicText); err != nil {
		return storage.Job{}, err
	}
	payload, err := json.Marshal(Payload{Topic: topicText})
	if err != nil {
		return storage.Job{}, err
	}
	return storage.Job{
		ID:          uuid.NewString(),
		Type:        JobTypeGenerateVideo,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}, nil
}

// Worker processes generate_video jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	proc     Processor
	catalog  *catalog.Catalog
	recorder *history.Recorder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, proc Processor, cat *catalog.Catalog, recorder *history.Recorder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		proc:     proc,
		catalog:  cat,
		recorder: recorder,
		poll:     pollInterval,
		logger:   slog.Default().With("component", "worker"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single generate_video job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeGenerateVideo})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	result, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID, result); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("job completed", "job_id", job.ID)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	started := time.Now()
	res, err := w.proc.ProcessTopic(ctx, payload.Topic)
	w.recorder.Record(history.SourceJob, payload.Topic, started, res, err)
	if err != nil {
		var ex *pipeline.ExhaustedError
		if errors.As(err, &ex) {
			return "", fmt.Errorf("%d attempts failed, last %s error: %s", ex.Attempts, ex.Last.Origin, ex.Last.Text)
		}
		return "", err
	}

	doc, err := w.catalog.FromResult(res)
	if err != nil {
		return "", fmt.Errorf("building result: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(b), nil
}
