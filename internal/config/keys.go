package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// aliases are extra env vars consulted, in order, when env is unset.
	aliases []string
	secret  bool
	// account names the secret in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "FOLIO_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "FOLIO_SERVER_PORT", aliases: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_body_bytes", typ: kInt, env: "FOLIO_SERVER_MAX_BODY_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxBodyBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxBodyBytes },
	},
	{
		key: "server.chat_rate_per_minute", typ: kInt, env: "FOLIO_SERVER_CHAT_RATE_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Server.ChatRatePerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.ChatRatePerMinute },
	},
	{
		key: "server.chat_burst", typ: kInt, env: "FOLIO_SERVER_CHAT_BURST",
		apply:   func(cfg *Config, v any) { cfg.Server.ChatBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.ChatBurst },
	},
	{
		key: "server.admin_token", typ: kString, env: "FOLIO_ADMIN_TOKEN",
		secret: true, account: "admin_token",
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "completion.base_url", typ: kString, env: "FOLIO_COMPLETION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.model", typ: kString, env: "FOLIO_COMPLETION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.temperature", typ: kFloat, env: "FOLIO_COMPLETION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Completion.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Completion.Temperature },
	},
	{
		key: "completion.max_tokens", typ: kInt, env: "FOLIO_COMPLETION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Completion.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Completion.MaxTokens },
	},
	{
		key: "completion.first_byte_timeout", typ: kDuration, env: "FOLIO_COMPLETION_FIRST_BYTE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Completion.FirstByteTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Completion.FirstByteTimeout },
	},
	{
		key: "completion.idle_timeout", typ: kDuration, env: "FOLIO_COMPLETION_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Completion.IdleTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Completion.IdleTimeout },
	},
	{
		key: "completion.stream_timeout", typ: kDuration, env: "FOLIO_COMPLETION_STREAM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Completion.StreamTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Completion.StreamTimeout },
	},
	{
		key: "completion.api_key", typ: kString, env: "FOLIO_COMPLETION_API_KEY", aliases: []string{"GROQ_API_KEY"},
		secret: true, account: "completion_api_key",
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "content.source", typ: kString, env: "FOLIO_CONTENT_SOURCE",
		apply:   func(cfg *Config, v any) { cfg.Content.Source = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.Source },
	},
	{
		key: "content.project_id", typ: kString, env: "FOLIO_CONTENT_PROJECT_ID", aliases: []string{"SANITY_PROJECT_ID"},
		apply:   func(cfg *Config, v any) { cfg.Content.ProjectID = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.ProjectID },
	},
	{
		key: "content.dataset", typ: kString, env: "FOLIO_CONTENT_DATASET", aliases: []string{"SANITY_DATASET"},
		apply:   func(cfg *Config, v any) { cfg.Content.Dataset = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.Dataset },
	},
	{
		key: "content.api_version", typ: kString, env: "FOLIO_CONTENT_API_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Content.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.APIVersion },
	},
	{
		key: "content.use_cdn", typ: kBool, env: "FOLIO_CONTENT_USE_CDN",
		apply:   func(cfg *Config, v any) { cfg.Content.UseCDN = v.(bool) },
		extract: func(cfg Config) any { return cfg.Content.UseCDN },
	},
	{
		key: "content.token", typ: kString, env: "FOLIO_CONTENT_TOKEN", aliases: []string{"SANITY_API_READ_TOKEN"},
		secret: true, account: "content_token",
		apply:   func(cfg *Config, v any) { cfg.Content.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FOLIO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "FOLIO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "telemetry.sentry_dsn", typ: kString, env: "FOLIO_SENTRY_DSN", aliases: []string{"SENTRY_DSN"},
		apply:   func(cfg *Config, v any) { cfg.Telemetry.SentryDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.SentryDSN },
	},
	{
		key: "telemetry.environment", typ: kString, env: "FOLIO_TELEMETRY_ENVIRONMENT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Environment = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.Environment },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text into the Go value the key's apply func expects.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("could not parse config key %s=%q: %v. Using default value.", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			warnf("could not parse env var %s=%q: %v. Using default value.", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// lookupEnv returns the first non-empty variable among env and aliases.
func lookupEnv(s keySpec) (string, string) {
	if s.env != "" {
		if v := os.Getenv(s.env); v != "" {
			return s.env, v
		}
	}
	for _, a := range s.aliases {
		if v := os.Getenv(a); v != "" {
			return a, v
		}
	}
	return "", ""
}
