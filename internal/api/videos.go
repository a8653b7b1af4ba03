package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/topic"
)

// ExhaustedMessage is shown to clients when every attempt failed.
const ExhaustedMessage = "The AI failed to generate a valid animation script after multiple attempts. Please try a different or more specific prompt."

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type quizRequest struct {
	CaptionContent string `json:"caption_content"`
	VideoID        string `json:"video_id"`
}

func handleGenerateVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Prompt is required")
			return
		}
		if err := topic.Validate(prompt); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt must contain letters or digits")
			return
		}

		log := deps.Logger.With("request_id", middleware.GetReqID(r.Context()), "topic", prompt)
		started := time.Now()

		// A client that disconnects must not abort a render in progress.
		res, err := deps.Pipeline.ProcessTopic(context.WithoutCancel(r.Context()), prompt)
		deps.Recorder.Record(history.SourceAPI, prompt, started, res, err)
		if err != nil {
			if errors.Is(err, pipeline.ErrExhausted) {
				log.Error("video generation exhausted", "error", err)
				httpError(w, http.StatusInternalServerError, "generation_failed", "%s", ExhaustedMessage)
				return
			}
			log.Error("video generation failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "An internal error occurred: %v", err)
			return
		}

		doc, err := deps.Catalog.FromResult(res)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building response: %v", err)
			return
		}
		doc.Title = prompt
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleListVideos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := deps.Catalog.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list videos: %v", err)
			return
		}
		if videos == nil {
			videos = []catalog.Summary{}
		}
		writeJSON(w, http.StatusOK, videos)
	}
}

func handleVideoDetails(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Catalog.Details(chi.URLParam(r, "id"))
		if errors.Is(err, catalog.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "Video not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load video: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleServeVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := deps.Catalog.Resolve(
			chi.URLParam(r, "module"),
			chi.URLParam(r, "resolution"),
			chi.URLParam(r, "file"),
		)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		http.ServeFile(w, r, path)
	}
}

func handleGenerateQuiz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Quizzer == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "quiz generation is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req quizRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.CaptionContent) == "" || strings.TrimSpace(req.VideoID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "caption_content and video_id are required")
			return
		}

		quiz, err := deps.Quizzer.Quiz(r.Context(), req.CaptionContent, req.VideoID)
		if err != nil {
			deps.Logger.Warn("quiz generation failed", "video_id", req.VideoID, "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to generate quiz: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
	}
}
