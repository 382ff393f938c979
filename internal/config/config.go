package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// keychainService is the secret store service all folio secrets live under.
const keychainService = "folio"

type Config struct {
	Server     ServerConfig
	Completion CompletionConfig
	Content    ContentConfig
	Storage    StorageConfig
	Log        LogConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	MaxBodyBytes      int
	ChatRatePerMinute int
	ChatBurst         int
	AdminToken        string
}

// CompletionConfig points at the OpenAI-compatible completion backend.
type CompletionConfig struct {
	BaseURL          string
	Model            string
	Temperature      float64
	MaxTokens        int
	FirstByteTimeout time.Duration
	IdleTimeout      time.Duration
	StreamTimeout    time.Duration
	APIKey           string
}

// ContentConfig selects where the profile bundle is read from.
type ContentConfig struct {
	Source     string // sanity | local | none
	ProjectID  string
	Dataset    string
	APIVersion string
	UseCDN     bool
	Token      string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type TelemetryConfig struct {
	SentryDSN   string
	Environment string
}

// Content sources.
const (
	SourceSanity = "sanity"
	SourceLocal  = "local"
	SourceNone   = "none"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              4000,
			MaxBodyBytes:      1 << 20,
			ChatRatePerMinute: 20,
			ChatBurst:         5,
		},
		Completion: CompletionConfig{
			BaseURL:          "https://api.groq.com/openai/v1",
			Model:            "llama-3.1-8b-instant",
			Temperature:      0.7,
			MaxTokens:        1024,
			FirstByteTimeout: 30 * time.Second,
			IdleTimeout:      30 * time.Second,
			StreamTimeout:    300 * time.Second,
		},
		Content: ContentConfig{
			Source:     SourceSanity,
			Dataset:    "production",
			APIVersion: "2024-01-01",
			UseCDN:     true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Environment: "development",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret
// store, in increasing order of precedence (secrets last, as a fallback).
//
// On macOS the backend is UserDefaults (domain: com.kalambet.folio) and
// secrets fall back to the login Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/folio/config.json
// and secrets fall back to $XDG_DATA_HOME/folio/secrets.json.
//
// Environment variables (FOLIO_*) override backend values on all platforms.
// A missing completion API key is not an error here: the server starts and
// answers chat requests with a configuration error instead.
func Load() (Config, error) {
	loadDotEnv()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// loadDotEnv loads .env without overriding variables already set.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills empty secrets from the secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		problems = append(problems, "server.max_body_bytes must be positive")
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("completion.temperature %v outside 0..2", c.Completion.Temperature))
	}
	if c.Completion.MaxTokens <= 0 {
		problems = append(problems, "completion.max_tokens must be positive")
	}
	switch c.Content.Source {
	case SourceSanity, SourceLocal, SourceNone:
	default:
		problems = append(problems, fmt.Sprintf("unknown content.source %q", c.Content.Source))
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		problems = append(problems, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}
