package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != keychainService {
		return "", errors.New("wrong service")
	}
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func loadFromPath(path string, kc keychain) (Config, error) {
	return loadWith(newFileBackend(path), kc)
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LECTERN_LLM_API_KEY", "test-key")
	path := writeTempConfig(t, "# empty\n")

	cfg, err := loadFromPath(path, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.Render.Binary != "manim" || cfg.Render.Quality != "low" || cfg.Render.MaxAttempts != 4 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if d, _ := cfg.RenderTimeout(); d != 300*time.Second {
		t.Errorf("RenderTimeout = %v, want 5m", d)
	}
	if d, _ := cfg.LLMTimeout(); d != 120*time.Second {
		t.Errorf("LLMTimeout = %v, want 2m", d)
	}
	if cfg.Storage.MediaDir != filepath.Join(cfg.Storage.DataDir, "media") {
		t.Errorf("Storage.MediaDir = %q", cfg.Storage.MediaDir)
	}
	if cfg.Narration.Enabled || cfg.Narration.Voice != "en-US-GuyNeural" {
		t.Errorf("Narration = %+v", cfg.Narration)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Server.APIToken)
	}
}

// TestTOMLParsing verifies that fields are read from TOML tables.
func TestTOMLParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
[server]
port = 8080

[llm]
provider = "ollama"
model = "qwen2.5-coder"
temperature = 0.5
timeout = "45s"

[ollama]
base_url = "http://gpu-box:11434"

[render]
quality = "high"
timeout = "10m"
max_attempts = 2

[storage]
data_dir = "/srv/lectern"

[narration]
enabled = true
voice = "en-GB-SoniaNeural"
`)

	cfg, err := loadFromPath(path, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.Provider != ProviderOllama || cfg.LLM.Model != "qwen2.5-coder" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.5 {
		t.Errorf("LLM.Temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Render.Quality != "high" || cfg.Render.MaxAttempts != 2 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if d, _ := cfg.RenderTimeout(); d != 10*time.Minute {
		t.Errorf("RenderTimeout = %v", d)
	}
	if cfg.Storage.MediaDir != "/srv/lectern/media" {
		t.Errorf("Storage.MediaDir = %q", cfg.Storage.MediaDir)
	}
	if !cfg.Narration.Enabled || cfg.Narration.Voice != "en-GB-SoniaNeural" {
		t.Errorf("Narration = %+v", cfg.Narration)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "[render]\nquality = \"high\"\n")
	t.Setenv("LECTERN_LLM_API_KEY", "env-key")
	t.Setenv("LECTERN_RENDER_QUALITY", "medium")
	t.Setenv("LECTERN_NARRATION_ENABLED", "true")
	t.Setenv("LECTERN_RENDER_MAX_ATTEMPTS", "not-a-number")

	cfg, err := loadFromPath(path, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Render.Quality != "medium" {
		t.Errorf("Render.Quality = %q, want medium", cfg.Render.Quality)
	}
	if !cfg.Narration.Enabled {
		t.Error("Narration.Enabled = false, want true")
	}
	if cfg.Render.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want default 4 on parse failure", cfg.Render.MaxAttempts)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestRelativeStorageDirsResolved(t *testing.T) {
	clearEnv(t)
	t.Setenv("LECTERN_LLM_API_KEY", "k")
	wd := t.TempDir()
	t.Chdir(wd)
	t.Setenv("LECTERN_STORAGE_DATA_DIR", "data")
	path := writeTempConfig(t, "")

	cfg, err := loadFromPath(path, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Compare against the working directory as the process sees it; the
	// temp dir may sit behind a symlink.
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(cwd, "data"); cfg.Storage.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, want)
	}
	if want := filepath.Join(cwd, "data", "media"); cfg.Storage.MediaDir != want {
		t.Errorf("MediaDir = %q, want %q", cfg.Storage.MediaDir, want)
	}
	if !filepath.IsAbs(cfg.WorkDir()) {
		t.Errorf("WorkDir = %q, want absolute", cfg.WorkDir())
	}
}

// TestSecretsIgnoredInFile verifies secrets never come from the config file.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "[llm]\napi_key = \"file-key\"\n")

	_, err := loadFromPath(path, mockKeychain{})
	if err == nil || !strings.Contains(err.Error(), "missing required config") {
		t.Fatalf("err = %v, want missing API key", err)
	}
}

// TestKeychainFallback verifies the secrets store is consulted when env is empty.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "# nothing\n")

	kc := mockKeychain{values: map[string]string{
		"llm_api_key": "keychain-secret",
		"api_token":   "token-from-store",
	}}
	cfg, err := loadFromPath(path, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "keychain-secret" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Server.APIToken != "token-from-store" {
		t.Errorf("APIToken = %q", cfg.Server.APIToken)
	}
}

func TestOllamaNeedsNoKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LECTERN_LLM_PROVIDER", "ollama")
	if _, err := loadFromPath(writeTempConfig(t, ""), mockKeychain{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := defaults()
	base.LLM.APIKey = "k"
	base.Storage.MediaDir = "/tmp/media"

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero attempts", func(c *Config) { c.Render.MaxAttempts = 0 }, "max_attempts"},
		{"bad render timeout", func(c *Config) { c.Render.Timeout = "soon" }, "render.timeout"},
		{"negative llm timeout", func(c *Config) { c.LLM.Timeout = "-1s" }, "llm.timeout"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSetKey_RoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("LECTERN_LLM_API_KEY", "k")
	path := filepath.Join(t.TempDir(), "lectern", "config.toml")

	b := newFileBackend(path)
	for key, val := range map[string]string{
		"render.quality":      "production",
		"render.max_attempts": "3",
		"narration.enabled":   "true",
		"llm.temperature":     "0.7",
	} {
		if err := setKey(b, key, val); err != nil {
			t.Fatalf("setKey(%s): %v", key, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(raw), "[render]") {
		t.Errorf("expected a [render] table, got:\n%s", raw)
	}

	cfg, err := loadFromPath(path, mockKeychain{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Render.Quality != "production" || cfg.Render.MaxAttempts != 3 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if !cfg.Narration.Enabled || cfg.LLM.Temperature != 0.7 {
		t.Errorf("Narration.Enabled = %v, Temperature = %v", cfg.Narration.Enabled, cfg.LLM.Temperature)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.toml"))

	if err := setKey(b, "llm.api_key", "x"); err == nil || !strings.Contains(err.Error(), "LECTERN_LLM_API_KEY") {
		t.Errorf("secret: err = %v", err)
	}
	if err := setKey(b, "nope.key", "x"); err == nil {
		t.Error("unknown key: expected error")
	}
	if err := setKey(b, "server.port", "eighty"); err == nil {
		t.Error("bad int: expected error")
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "super-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "super-secret") {
			t.Fatalf("%s leaks the secret", ki.Key)
		}
		if ki.Key == "llm.api_key" && ki.Value != "(set)" {
			t.Errorf("llm.api_key = %q, want (set)", ki.Value)
		}
		if ki.Key == "server.api_token" && ki.Value != "(unset)" {
			t.Errorf("server.api_token = %q, want (unset)", ki.Value)
		}
	}
}

func TestValidKeys_ExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "llm.api_key" || k == "server.api_token" {
			t.Errorf("ValidKeys contains secret %q", k)
		}
	}
}
