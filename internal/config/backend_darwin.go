//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.ticketkb.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "ticketkb")
	}
	return "ticketkb-data"
}

func secretHint(account string) string {
	return " or macOS Keychain (service: " + secretService + ", account: " + account + ")"
}

// defaultsBackend reads and writes the com.ticketkb.app defaults domain.
type defaultsBackend struct{}

func newPlatformBackend() ConfigBackend {
	return defaultsBackend{}
}

func (defaultsBackend) Get(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", defaultsDomain, key).CombinedOutput()
	val := strings.TrimSpace(string(out))
	if err != nil {
		// defaults exits 1 when the key is not set.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, val)
	}
	return val, true, nil
}

func (defaultsBackend) Set(key, val string) error {
	if out, err := exec.Command("defaults", "write", defaultsDomain, key, "-string", val).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s: %w (%s)", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
