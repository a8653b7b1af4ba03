package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/lectern/internal/cache"
	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/config"
	"github.com/kalambet/lectern/internal/content"
	"github.com/kalambet/lectern/internal/engine"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/media"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/render"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/subtitle"
)

// app is the in-process object graph shared by `start` and `run`.
type app struct {
	cfg      config.Config
	store    *storage.Store
	cache    *cache.Cache
	renderer *render.Invoker
	pipeline *pipeline.Orchestrator
	catalog  *catalog.Catalog
	recorder *history.Recorder
	quizzer  *content.Quizzer
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// newApp builds every component from cfg. Model readiness is reported to
// progress.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, progress io.Writer) (*app, error) {
	quality, err := render.ParseQuality(cfg.Render.Quality)
	if err != nil {
		return nil, err
	}
	renderTimeout, err := cfg.RenderTimeout()
	if err != nil {
		return nil, err
	}
	llmTimeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, err
	}

	temperature := cfg.LLM.Temperature
	eng, err := engine.Detect(engine.DetectConfig{
		Provider:      cfg.LLM.Provider,
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		Temperature:   &temperature,
		Timeout:       llmTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting llm backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.LLM.Model, progress); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.MediaDir, cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	renderer := render.New(render.Options{
		Binary:   cfg.Render.Binary,
		MediaDir: cfg.Storage.MediaDir,
		Quality:  quality,
		Timeout:  renderTimeout,
		Logger:   logger.With("component", "render"),
	})
	c := cache.New(cfg.CachePath(), logger)
	gen := content.NewGenerator(eng, cfg.LLM.Model).WithTimeout(llmTimeout)

	opts := pipeline.Options{
		WorkDir:     cfg.WorkDir(),
		MaxAttempts: cfg.Render.MaxAttempts,
		Logger:      logger,
	}
	if cfg.Narration.Enabled {
		n := media.New(media.Options{
			TTSBinary:    cfg.Narration.TTSBinary,
			Voice:        cfg.Narration.Voice,
			FFmpegBinary: cfg.Narration.FFmpegBinary,
			Skip:         []string{subtitle.MissingPlaceholder},
			Logger:       logger.With("component", "narration"),
		})
		if err := n.Preflight(ctx); err != nil {
			logger.Warn("narration disabled", "error", err)
		} else {
			opts.Narrator = n
		}
	}

	return &app{
		cfg:      cfg,
		store:    store,
		cache:    c,
		renderer: renderer,
		pipeline: pipeline.New(gen, renderer, c, opts),
		catalog:  catalog.New(cfg.Storage.MediaDir, quality.Resolution()),
		recorder: history.NewRecorder(store, logger.With("component", "history")),
		quizzer:  content.NewQuizzer(eng, cfg.LLM.Model),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
