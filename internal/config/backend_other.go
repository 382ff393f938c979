//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "folio-data"
		}
	}
	return filepath.Join(dir, "folio")
}

func apiKeyHint() string {
	return " or " + secretsFilePath() + ` ({"folio": {"completion_api_key": "..."}})`
}

// fileBackend keeps settings as one flat JSON object under the XDG config
// directory. Values written by hand may be numbers or strings.
type fileBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() Backend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: map[string]any{}}
	b.load()
	return b
}

func configFilePath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "folio", "config.json")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "folio", "config.json")
}

// load leaves the backend empty when the file is missing or unreadable.
func (b *fileBackend) load() {
	raw, err := os.ReadFile(b.path)
	switch {
	case os.IsNotExist(err):
		return
	case err != nil:
		warnf("ignoring config file %s: %v", b.path, err)
		return
	}
	if err := json.Unmarshal(raw, &b.data); err != nil {
		warnf("ignoring malformed config file %s: %v", b.path, err)
		b.data = map[string]any{}
	}
}

func (b *fileBackend) set(key string, v any) error {
	b.data[key] = v
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, out, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unsupported value type %T", key, v)
	}
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }
