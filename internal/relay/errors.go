package relay

import (
	"errors"
	"fmt"
)

// ConfigurationError means the server cannot serve chat at all, for example
// because a credential is missing. Its text never includes secret values.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("relay not configured: %s is not set", e.Setting)
}

// ErrMissingCredential is returned when no completion API key is configured.
var ErrMissingCredential error = &ConfigurationError{Setting: "completion API key"}

// ErrNoQuestion is returned when the conversation has no user message.
var ErrNoQuestion = errors.New("conversation has no user message")

// UpstreamError wraps any failure talking to the completion backend.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream completion failed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }
