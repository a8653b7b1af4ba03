package engine

import (
	"context"
	"time"

	"github.com/kalambet/lectern/internal/ollama"
)

const (
	// ollamaContextWindow fits a full script plus a render traceback in a
	// repair prompt; the server default of 2048 tokens does not.
	ollamaContextWindow = 16384
	ollamaKeepAlive     = 10 * time.Minute
)

// OllamaEngine serves chat from a local Ollama server.
type OllamaEngine struct {
	client  *ollama.Client
	options *ollama.Options
}

// NewOllamaEngine creates an OllamaEngine for the server at baseURL. A zero
// timeout leaves chat requests bounded only by their context.
func NewOllamaEngine(baseURL string, temperature *float64, timeout time.Duration) *OllamaEngine {
	return &OllamaEngine{
		client: ollama.New(baseURL).WithTimeout(timeout).WithKeepAlive(ollamaKeepAlive),
		options: &ollama.Options{
			Temperature: temperature,
			NumCtx:      ollamaContextWindow,
		},
	}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	var format any
	if jsonSchema != nil {
		format = jsonSchema
	}
	return e.client.Chat(ctx, model, msgs, format, e.options)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
	})
}
