// Package config loads lectern settings from defaults, a TOML file, the
// environment and a secrets store, in increasing order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Render    RenderConfig
	Storage   StorageConfig
	Narration NarrationConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	Timeout     string
}

type OllamaConfig struct {
	BaseURL string
}

type RenderConfig struct {
	Binary      string
	Quality     string
	Timeout     string
	MaxAttempts int
}

type StorageConfig struct {
	DataDir  string
	MediaDir string
}

type NarrationConfig struct {
	Enabled      bool
	TTSBinary    string
	Voice        string
	FFmpegBinary string
}

type LogConfig struct {
	Level string
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	keychainService = "lectern"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "google/gemini-2.5-flash",
			Temperature: 0.2,
			Timeout:     "120s",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Render: RenderConfig{
			Binary:      "manim",
			Quality:     "low",
			Timeout:     "300s",
			MaxAttempts: 4,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Narration: NarrationConfig{
			TTSBinary:    "edge-tts",
			Voice:        "en-US-GuyNeural",
			FFmpegBinary: "ffmpeg",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/lectern/config.toml, then LECTERN_* environment
// variables, then the secrets store for secrets still unset.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if cfg.Storage.MediaDir == "" {
		cfg.Storage.MediaDir = filepath.Join(cfg.Storage.DataDir, "media")
	}
	// The renderer runs in a per-request work dir, so every path handed to
	// it must be absolute.
	for _, dir := range []*string{&cfg.Storage.DataDir, &cfg.Storage.MediaDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return Config{}, fmt.Errorf("resolving %s: %w", *dir, err)
		}
		*dir = abs
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("missing required config: LLM API key. "+
				"Set it via environment variable LECTERN_LLM_API_KEY%s", apiKeyHint())
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderOllama, c.LLM.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Render.MaxAttempts < 1 {
		return fmt.Errorf("render.max_attempts must be at least 1, got %d", c.Render.MaxAttempts)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	if _, err := c.RenderTimeout(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// LLMTimeout is the per-request limit for model calls.
func (c Config) LLMTimeout() (time.Duration, error) {
	return parseDuration("llm.timeout", c.LLM.Timeout)
}

// RenderTimeout is the wall-clock limit of one renderer run.
func (c Config) RenderTimeout() (time.Duration, error) {
	return parseDuration("render.timeout", c.Render.Timeout)
}

// CachePath is the topic cache file.
func (c Config) CachePath() string {
	return filepath.Join(c.Storage.DataDir, "video_cache.json")
}

// WorkDir holds the per-request script directories.
func (c Config) WorkDir() string {
	return filepath.Join(c.Storage.DataDir, "work")
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

// keychainReader reads secrets from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
