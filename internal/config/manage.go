package config

import (
	"fmt"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns all config key/value pairs from the current config.
// Secret values are reported only as set or not set.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  displayValue(s, cfg),
			Secret: s.secret,
		})
	}
	return result
}

// GetKey returns the display value of one key.
func GetKey(cfg Config, key string) (string, error) {
	s, ok := lookupSpec(key)
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}
	return displayValue(s, cfg), nil
}

func displayValue(s keySpec, cfg Config) string {
	v := s.extract(cfg)
	if s.secret {
		if v == "" {
			return "(not set)"
		}
		return "(set)"
	}
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", v)
}

// SetKey writes a config key to the platform backend. Secrets go to the
// platform secret store instead.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), keychainSet, key, value)
}

func setKeyWith(b Backend, setSecret func(service, account, value string) error, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		if err := setSecret(keychainService, s.account, value); err != nil {
			return fmt.Errorf("storing secret %s: %w", key, err)
		}
		return nil
	}

	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		return b.SetInt(key, v.(int))
	}
	return b.SetString(key, value)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}

// MissingKeyHint tells the operator where the completion API key can be set.
func MissingKeyHint() string {
	return "set FOLIO_COMPLETION_API_KEY (or GROQ_API_KEY)" + apiKeyHint()
}
