package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/worker"
)

type jobResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Topic     string          `json:"topic,omitempty"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type runResponse struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastOrigin string `json:"last_origin,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	VideoPath  string `json:"video_path,omitempty"`
	FromCache  bool   `json:"from_cache"`
	Source     string `json:"source"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

func handleEnqueueJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Prompt is required")
			return
		}

		job, err := worker.NewGenerateJob(req.Prompt)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid prompt: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": storage.JobPending})
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		resp := jobResponse{
			ID:        job.ID,
			Status:    job.Status,
			Error:     job.LastError,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
			UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		}
		var payload worker.Payload
		if json.Unmarshal([]byte(job.PayloadJSON), &payload) == nil {
			resp.Topic = payload.Topic
		}
		if job.ResultJSON != "" {
			resp.Result = json.RawMessage(job.ResultJSON)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Store.RecentRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}

		out := make([]runResponse, len(runs))
		for i, run := range runs {
			out[i] = toRunResponse(run)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toRunResponse(run storage.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		Topic:      run.Topic,
		Status:     run.Status,
		Attempts:   run.Attempts,
		LastOrigin: run.LastOrigin,
		LastError:  run.LastError,
		VideoPath:  run.VideoPath,
		FromCache:  run.FromCache,
		Source:     run.Source,
		DurationMs: run.DurationMs,
		CreatedAt:  run.CreatedAt.Format(time.RFC3339),
	}
}
