//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "lectern")
	}
	return "lectern-data"
}

func apiKeyHint() string {
	return " or macOS Keychain (service: lectern, account: llm_api_key)"
}
