package engine

import (
	"context"
	"fmt"

	"github.com/kalambet/lectern/internal/llm"
)

// OpenAIEngine serves chat through any OpenAI-compatible HTTP endpoint
// (OpenRouter, Gemini, vLLM, mlx-lm). Models are hosted remotely, so there is
// nothing to pull.
type OpenAIEngine struct {
	client      *llm.Client
	temperature *float64
}

// NewOpenAIEngine wraps an llm.Client.
func NewOpenAIEngine(client *llm.Client, temperature *float64) *OpenAIEngine {
	return &OpenAIEngine{client: client, temperature: temperature}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]llm.Message, len(messages))
	for i, m := range messages {
		msgs[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	req := llm.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: e.temperature,
	}
	if jsonSchema != nil {
		req.ResponseFormat = &llm.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &llm.JSONSchema{Name: "response", Schema: jsonSchema},
		}
	}
	return e.client.Complete(ctx, req)
}

// IsRunning probes the models listing.
func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// HasModel always reports true: availability is checked on the first chat.
func (e *OpenAIEngine) HasModel(_ context.Context, _ string) bool {
	return true
}

func (e *OpenAIEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("model %s: pulling is not supported by OpenAI-compatible endpoints", name)
}
