package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/content"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Processor turns a topic into a video.
type Processor interface {
	ProcessTopic(ctx context.Context, topic string) (pipeline.Result, error)
}

// Quizzer writes a quiz from narration text.
type Quizzer interface {
	Quiz(ctx context.Context, transcript, videoID string) (content.Quiz, error)
}

// Deps holds what the HTTP handlers need.
type Deps struct {
	Pipeline Processor
	Store    *storage.Store
	Catalog  *catalog.Catalog
	Quizzer  Quizzer // optional; nil disables /api/generate-quiz
	Recorder *history.Recorder
	// Token guards the write routes when non-empty.
	Token  string
	Logger *slog.Logger
}

// NewHandler returns the lectern HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Get("/api/list-videos", handleListVideos(deps))
	r.Get("/api/video-details/{id}", handleVideoDetails(deps))
	r.Get("/api/runs", handleListRuns(deps))
	r.Get("/api/jobs/{id}", handleGetJob(deps))
	r.Get("/videos/{module}/{resolution}/{file}", handleServeVideo(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/api/generate-video", handleGenerateVideo(deps))
		r.Post("/api/jobs", handleEnqueueJob(deps))
		r.Post("/api/generate-quiz", handleGenerateQuiz(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
