package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/api"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/relay"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/telemetry"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, backend and content status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve portfolio tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// openContent builds the configured content source. The store is non-nil
// only for the local source and must be closed by the caller.
func openContent(cfg config.Config) (content.Source, *storage.Store, error) {
	if cfg.Content.Source != config.SourceLocal {
		src, err := content.New(cfg.Content, nil)
		return src, nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	src, err := content.New(cfg.Content, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return src, store, nil
}

func newCompletionClient(cfg config.CompletionConfig) *proxy.Client {
	return proxy.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL, proxy.Options{
		FirstByteTimeout: cfg.FirstByteTimeout,
		IdleTimeout:      cfg.IdleTimeout,
		StreamTimeout:    cfg.StreamTimeout,
	})
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	slog.Info("folio starting", "version", version)

	flush := telemetry.Init(cfg.Telemetry, version)
	defer flush()

	src, store, err := openContent(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}()
	}

	completion := newCompletionClient(cfg.Completion)
	if !completion.Configured() {
		slog.Warn("completion API key not set, /chat will answer with a configuration error", "hint", config.MissingKeyHint())
	}
	rl := relay.New(completion, relay.Options{
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
	})

	deps := api.Deps{
		Relay:             rl,
		Content:           src,
		MaxBodyBytes:      int64(cfg.Server.MaxBodyBytes),
		ChatRatePerMinute: cfg.Server.ChatRatePerMinute,
		ChatBurst:         cfg.Server.ChatBurst,
	}
	if store != nil && cfg.Server.AdminToken != "" {
		deps.Store = store
		deps.AdminToken = cfg.Server.AdminToken
		slog.Info("admin content routes enabled")
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("folio listening", "addr", addr, "content_source", cfg.Content.Source, "model", cfg.Completion.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol, so logs stay on stderr.
	setupLogging(cfg)

	src, store, err := openContent(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Content: src, Version: version})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	base := serverURL(cmd, cfg)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", base)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Completion.BaseURL)
	printStatus("Model", "%s", cfg.Completion.Model)
	completion := newCompletionClient(cfg.Completion)
	if !completion.Configured() {
		printStatus("API key", "%s", colorize(styleYellow, "not set ("+config.MissingKeyHint()+")"))
	} else {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		models, err := completion.ListModels(ctx)
		if err != nil {
			printStatus("API key", "%s", colorize(styleRed, "rejected or unreachable: "+err.Error()))
		} else {
			printStatus("API key", "ok (%d models available)", len(models))
			if !hasModel(models, cfg.Completion.Model) {
				printWarning("configured model %q is not offered by the backend", cfg.Completion.Model)
			}
		}
	}

	printStatus("Content", "%s", cfg.Content.Source)
	if cfg.Content.Source == config.SourceSanity {
		printStatus("Sanity project", "%s/%s", valueOr(cfg.Content.ProjectID, "(not set)"), cfg.Content.Dataset)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func hasModel(models []proxy.Model, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
