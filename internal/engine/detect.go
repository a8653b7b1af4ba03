package engine

import (
	"fmt"
	"time"

	"github.com/kalambet/lectern/internal/llm"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	OllamaBaseURL string
	Temperature   *float64
	Timeout       time.Duration
}

// Detect returns the Engine for the configured provider.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		client := llm.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL).WithTimeout(cfg.Timeout)
		return NewOpenAIEngine(client, cfg.Temperature), nil
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Temperature, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want %q or %q)", cfg.Provider, ProviderOpenAI, ProviderOllama)
	}
}
