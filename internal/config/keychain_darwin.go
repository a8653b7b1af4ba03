//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// keychainGet reads a generic password from the login keychain.
func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("no keychain item %s/%s", service, account)
	}
	return out, err
}
