package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names the secret in the secrets store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LECTERN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "LECTERN_SERVER_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.provider", typ: kString, env: "LECTERN_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "LECTERN_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "LECTERN_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "LECTERN_LLM_API_KEY",
		secret: true, account: "llm_api_key",
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "LECTERN_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.timeout", typ: kString, env: "LECTERN_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "LECTERN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "render.binary", typ: kString, env: "LECTERN_RENDER_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Render.Binary = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.Binary },
	},
	{
		key: "render.quality", typ: kString, env: "LECTERN_RENDER_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.Render.Quality = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.Quality },
	},
	{
		key: "render.timeout", typ: kString, env: "LECTERN_RENDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Render.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.Timeout },
	},
	{
		key: "render.max_attempts", typ: kInt, env: "LECTERN_RENDER_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Render.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Render.MaxAttempts },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LECTERN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.media_dir", typ: kString, env: "LECTERN_STORAGE_MEDIA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.MediaDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MediaDir },
	},
	{
		key: "narration.enabled", typ: kBool, env: "LECTERN_NARRATION_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Narration.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Narration.Enabled },
	},
	{
		key: "narration.tts_binary", typ: kString, env: "LECTERN_NARRATION_TTS_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Narration.TTSBinary = v.(string) },
		extract: func(cfg Config) any { return cfg.Narration.TTSBinary },
	},
	{
		key: "narration.voice", typ: kString, env: "LECTERN_NARRATION_VOICE",
		apply:   func(cfg *Config, v any) { cfg.Narration.Voice = v.(string) },
		extract: func(cfg Config) any { return cfg.Narration.Voice },
	},
	{
		key: "narration.ffmpeg_binary", typ: kString, env: "LECTERN_NARRATION_FFMPEG_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Narration.FFmpegBinary = v.(string) },
		extract: func(cfg Config) any { return cfg.Narration.FFmpegBinary },
	},
	{
		key: "log.level", typ: kString, env: "LECTERN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
