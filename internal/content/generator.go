// Package content asks the language model for Manim scripts and quizzes.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/lectern/internal/engine"
)

const defaultTimeout = 3 * time.Minute

// ErrGeneration wraps every failure to obtain a usable script.
var ErrGeneration = errors.New("script generation failed")

// Chatter is the subset of engine.Engine the generator needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Generator produces and repairs scripts. It makes exactly one backend call
// per method invocation; retry policy belongs to the caller.
type Generator struct {
	client  Chatter
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a Generator using the given chat client and model.
func NewGenerator(client Chatter, model string) *Generator {
	return &Generator{
		client:  client,
		model:   model,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
}

// WithTimeout bounds each backend call. Zero keeps the default.
func (g *Generator) WithTimeout(d time.Duration) *Generator {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// Generate asks for a new script whose scene class is named classID.
func (g *Generator) Generate(ctx context.Context, topic, classID string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrGeneration)
	}
	return g.complete(ctx, "generate", BuildGeneratePrompt(topic, classID))
}

// Repair asks for a corrected version of previous given the observed error.
func (g *Generator) Repair(ctx context.Context, previous, errText string) (string, error) {
	return g.complete(ctx, "repair", BuildRepairPrompt(previous, errText))
}

func (g *Generator) complete(ctx context.Context, op string, messages []engine.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.client.Chat(ctx, g.model, messages, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrGeneration, op, err)
	}

	parsed := ParseResponse(raw)
	if parsed.Script == "" {
		g.logger.Warn("model reply had no script", "op", op, "reply_len", len(raw))
		return "", fmt.Errorf("%w: %s: no script found in model reply", ErrGeneration, op)
	}

	g.logger.Debug("script received", "op", op, "model", g.model,
		"script_len", len(parsed.Script), "has_transcript", parsed.Transcript != "",
		"duration_ms", time.Since(start).Milliseconds())
	return parsed.Script, nil
}
