//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// secrets maps service -> account -> value.
type secrets map[string]map[string]string

func secretsFilePath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "secrets.json"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "folio", "secrets.json")
}

func readSecrets() (secrets, error) {
	raw, err := os.ReadFile(secretsFilePath())
	if err != nil {
		return nil, err
	}
	var s secrets
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return s, nil
}

func keychainGet(service, account string) ([]byte, error) {
	s, err := readSecrets()
	if err != nil {
		return nil, fmt.Errorf("no secrets file: %w", err)
	}
	val, ok := s[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s", service, account)
	}
	return []byte(val), nil
}

// keychainSet stores value in the secrets file, creating it with mode 0600.
// An unreadable existing file is replaced.
func keychainSet(service, account, value string) error {
	s, _ := readSecrets()
	if s == nil {
		s = secrets{}
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value

	path := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
