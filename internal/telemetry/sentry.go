// Package telemetry reports relay failures to Sentry. With no DSN configured
// every call is a no-op.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kalambet/folio/internal/config"
)

const (
	serverName   = "folio"
	flushTimeout = 5 * time.Second
)

// Init configures the global Sentry client and returns a function that flushes
// pending events. Initialization failures are logged and otherwise ignored.
func Init(cfg config.TelemetryConfig, version string) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}
	env := cfg.Environment
	if env == "" {
		env = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: env,
		Release:     version,
		ServerName:  serverName,
	})
	if err != nil {
		slog.Warn("sentry: failed to initialize, continuing without error reporting", "error", err)
		return func() {}
	}

	slog.Info("sentry: error reporting enabled", "environment", env)
	return func() { sentry.Flush(flushTimeout) }
}

// Hub returns the request-scoped hub, falling back to the global one.
func Hub(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// WithHub attaches a fresh hub clone to ctx so tags set during one request do
// not leak into another.
func WithHub(ctx context.Context) (context.Context, *sentry.Hub) {
	hub := sentry.CurrentHub().Clone()
	return sentry.SetHubOnContext(ctx, hub), hub
}

// CaptureError sends err with the tags attached to the context's hub.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	Hub(ctx).CaptureException(err)
}

// AddBreadcrumb records a step that will accompany the next captured event.
func AddBreadcrumb(ctx context.Context, category, message string) {
	Hub(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
