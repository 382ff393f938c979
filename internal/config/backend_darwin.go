//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.kalambet.folio"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "folio")
	}
	return "folio-data"
}

func apiKeyHint() string {
	return " or macOS Keychain (service: folio, account: completion_api_key)"
}

// defaultsBackend reads and writes the user defaults domain through the
// defaults(1) tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", b.domain, key).CombinedOutput()
	val := strings.TrimSpace(string(out))
	if err != nil {
		// defaults exits 1 for a key or domain that does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, val)
	}
	return val, true, nil
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	val, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return i, true, nil
}

func (b defaultsBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b defaultsBackend) write(key, typeFlag, val string) error {
	if out, err := exec.Command("defaults", "write", b.domain, key, typeFlag, val).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s: %w (%s)", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
