// Package pipeline turns a topic into a rendered video: cache lookup,
// script generation, rendering and a bounded repair loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/lectern/internal/cache"
	"github.com/kalambet/lectern/internal/media"
	"github.com/kalambet/lectern/internal/render"
	"github.com/kalambet/lectern/internal/script"
	"github.com/kalambet/lectern/internal/subtitle"
	"github.com/kalambet/lectern/internal/topic"
)

// DefaultMaxAttempts is one generation plus three repairs.
const DefaultMaxAttempts = 4

// Generator produces a script for a topic and repairs a failing one.
type Generator interface {
	Generate(ctx context.Context, topic, classID string) (string, error)
	Repair(ctx context.Context, previous, errText string) (string, error)
}

// Renderer runs a script and finds the video it produced.
type Renderer interface {
	Render(ctx context.Context, scriptPath, sceneID, outputName string) (render.Outcome, error)
	Locate(moduleID, classID string) (render.Artifacts, error)
	Timeout() time.Duration
}

// ResultCache remembers finished renders per topic.
type ResultCache interface {
	Lookup(topic string) (cache.Entry, bool)
	Store(topic string, e cache.Entry) error
}

// Narrator speaks a transcript over a video.
type Narrator interface {
	Narrate(ctx context.Context, video, transcript, out string) error
}

// Options tunes an Orchestrator.
type Options struct {
	// WorkDir holds one transient directory per request. Defaults to the
	// system temp dir.
	WorkDir     string
	MaxAttempts int
	// Narrator is optional; nil disables the narration stage.
	Narrator Narrator
	Logger   *slog.Logger
}

// Result describes a finished video.
type Result struct {
	Topic        string
	ModuleID     string
	ClassID      string
	Resolution   string
	VideoPath    string
	NarratedPath string
	Narration    string
	FromCache    bool
	Attempts     int
	Duration     time.Duration
}

// Orchestrator drives one topic from cache lookup to a cached video. A
// single call runs sequentially; concurrent calls for different topics are
// independent apart from the shared cache.
type Orchestrator struct {
	gen         Generator
	renderer    Renderer
	cache       ResultCache
	narrator    Narrator
	workDir     string
	maxAttempts int
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(gen Generator, renderer Renderer, c ResultCache, opts Options) *Orchestrator {
	o := &Orchestrator{
		gen:         gen,
		renderer:    renderer,
		cache:       c,
		narrator:    opts.Narrator,
		workDir:     opts.WorkDir,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}
	if o.workDir == "" {
		o.workDir = os.TempDir()
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxAttempts
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "pipeline")
	return o
}

// MaxAttempts is the total attempt budget per request.
func (o *Orchestrator) MaxAttempts() int { return o.maxAttempts }

// ProcessTopic returns the video for topicText, rendering it if the cache has
// no live entry. Failures inside the loop are retried until the attempt
// budget runs out, at which point an *ExhaustedError is returned. The only
// other errors are an invalid topic and cancellation of ctx.
func (o *Orchestrator) ProcessTopic(ctx context.Context, topicText string) (Result, error) {
	if err := topic.Validate(topicText); err != nil {
		return Result{}, err
	}
	start := time.Now()
	moduleID := topic.ModuleID(topicText)
	classID := topic.ClassID(topicText)
	log := o.logger.With("topic", topicText, "module", moduleID)

	if e, ok := o.cache.Lookup(topicText); ok {
		log.Info("cache hit", "video", e.VideoPath)
		return Result{
			Topic:        topicText,
			ModuleID:     e.Module,
			ClassID:      e.Class,
			Resolution:   e.Resolution,
			VideoPath:    e.VideoPath,
			NarratedPath: e.NarratedPath,
			Narration:    e.Narration,
			FromCache:    true,
			Duration:     time.Since(start),
		}, nil
	}

	dir := filepath.Join(o.workDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &ExhaustedError{
			Topic: topicText,
			Last:  LastError{Origin: OriginIO, Text: fmt.Sprintf("create work dir: %v", err)},
		}
	}
	defer os.RemoveAll(dir)
	scriptPath := filepath.Join(dir, moduleID+".py")

	var (
		source string
		last   LastError
		// failure is the most recent problem with source itself; repairs
		// are asked to fix this even when a later repair call failed.
		failure LastError
	)

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		alog := log.With("attempt", attempt, "max_attempts", o.maxAttempts)

		next, err := o.obtainScript(ctx, topicText, classID, source, failure)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			last = LastError{Origin: OriginGenerate, Text: err.Error()}
			alog.Warn("script request failed", "error", err)
			continue
		}
		source = next

		arts, le, ok := o.attempt(ctx, alog, scriptPath, source, moduleID, classID)
		if !ok {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			last, failure = le, le
			alog.Warn("attempt failed", "origin", le.Origin, "error", truncate(le.Text, 500))
			continue
		}

		res := o.finish(ctx, log, topicText, moduleID, classID, arts)
		res.Attempts = attempt
		res.Duration = time.Since(start)
		log.Info("video ready", "attempts", attempt, "video", res.VideoPath,
			"duration_ms", res.Duration.Milliseconds())
		return res, nil
	}

	log.Error("attempts exhausted", "attempts", o.maxAttempts, "origin", last.Origin)
	return Result{}, &ExhaustedError{Topic: topicText, Attempts: o.maxAttempts, Last: last}
}

// obtainScript generates when there is no script yet and repairs otherwise.
func (o *Orchestrator) obtainScript(ctx context.Context, topicText, classID, source string, failure LastError) (string, error) {
	if source == "" {
		return o.gen.Generate(ctx, topicText, classID)
	}
	return o.gen.Repair(ctx, source, repairText(failure, o.renderer.Timeout()))
}

// attempt writes, checks and renders one script. ok is false when the
// attempt failed, with the reason in the returned LastError.
func (o *Orchestrator) attempt(ctx context.Context, log *slog.Logger, scriptPath, source, moduleID, classID string) (render.Artifacts, LastError, bool) {
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		return render.Artifacts{}, LastError{Origin: OriginIO, Text: fmt.Sprintf("write script: %v", err)}, false
	}

	sceneID, err := script.FindSceneIdentifier(source)
	if err != nil {
		return render.Artifacts{}, LastError{Origin: OriginParse, Text: err.Error()}, false
	}

	out, err := o.renderer.Render(ctx, scriptPath, sceneID, classID)
	if err != nil {
		return render.Artifacts{}, LastError{Origin: OriginRender, Text: err.Error()}, false
	}
	if rerr := out.Err(o.renderer.Timeout()); rerr != nil {
		origin := OriginRender
		var te *render.TimeoutError
		if errors.As(rerr, &te) {
			origin = OriginTimeout
		}
		text := out.Diagnostic()
		if text == "" {
			text = rerr.Error()
		}
		return render.Artifacts{}, LastError{Origin: origin, Text: text}, false
	}

	arts, err := o.renderer.Locate(moduleID, classID)
	if err != nil {
		text := err.Error()
		if d := out.Diagnostic(); d != "" {
			text += "\n" + d
		}
		return render.Artifacts{}, LastError{Origin: OriginArtifact, Text: text}, false
	}
	log.Debug("render succeeded", "scene", sceneID, "video", arts.VideoPath)
	return arts, LastError{}, true
}

// finish reads the narration, runs the optional narration stage and writes
// the result through to the cache.
func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, topicText, moduleID, classID string, arts render.Artifacts) Result {
	narration := subtitle.ExtractTranscript(arts.SubtitlePath)

	var narrated string
	if o.narrator != nil {
		out := render.NarratedPath(arts.VideoPath)
		err := o.narrator.Narrate(ctx, arts.VideoPath, narration, out)
		switch {
		case err == nil:
			narrated = out
		case errors.Is(err, media.ErrNothingToNarrate):
			log.Info("narration skipped", "reason", err)
		default:
			log.Warn("narration failed, keeping silent video", "error", err)
		}
	}

	entry := cache.Entry{
		Module:       moduleID,
		Resolution:   arts.Resolution,
		Class:        classID,
		VideoPath:    arts.VideoPath,
		NarratedPath: narrated,
		Narration:    narration,
		CachedAt:     time.Now().UTC(),
	}
	if err := o.cache.Store(topicText, entry); err != nil {
		log.Error("cache write failed", "error", err)
	}

	return Result{
		Topic:        topicText,
		ModuleID:     moduleID,
		ClassID:      classID,
		Resolution:   arts.Resolution,
		VideoPath:    arts.VideoPath,
		NarratedPath: narrated,
		Narration:    narration,
	}
}

func repairText(failure LastError, limit time.Duration) string {
	if failure.Origin == OriginTimeout {
		return fmt.Sprintf("The render was killed after %s without finishing. "+
			"This usually means a runaway animation (an updater or loop that never ends, or a very long wait) "+
			"or something blocking on the network. Output before the kill:\n%s", limit, failure.Text)
	}
	return failure.Text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
