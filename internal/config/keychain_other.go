//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", keychainService, "secrets.json")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, keychainService, "secrets.json")
}

// keychainGet reads a secret from a JSON file shaped {service: {account: value}}.
// A file readable by group or others is refused.
func keychainGet(service, account string) ([]byte, error) {
	p := secretsFilePath()
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("secrets file not available: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("secrets file %s has mode %v, want 0600", p, info.Mode().Perm())
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s in %s", service, account, p)
	}
	return []byte(val), nil
}
