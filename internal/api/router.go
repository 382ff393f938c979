// Package api exposes the chat relay over HTTP and MCP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/relay"
)

const defaultMaxBodyBytes = 1 << 20 // 1MB

// ContentStore is the writable local store behind PUT /admin/content.
type ContentStore interface {
	ReplaceBundle(b profile.Bundle) error
	Counts() (map[string]int, error)
	UpdatedAt() (time.Time, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Relay   *relay.Relay
	Content content.Source

	// Store and AdminToken enable the admin routes when both are set.
	Store      ContentStore
	AdminToken string

	MaxBodyBytes      int64
	ChatRatePerMinute int
	ChatBurst         int
}

// NewHandler returns the folio HTTP handler.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Content == nil {
		deps.Content = content.Static{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(SentryHub)

	r.Get("/health", handleHealth)
	r.Get("/profile", handleProfile(deps))

	r.Group(func(r chi.Router) {
		if deps.ChatRatePerMinute > 0 {
			perSecond := rate.Limit(float64(deps.ChatRatePerMinute) / 60)
			r.Use(newIPLimiter(perSecond, deps.ChatBurst).Middleware)
		}
		r.Post("/chat", handleChat(deps))
	})

	if deps.Store != nil && deps.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(BearerAuth(deps.AdminToken))
			r.Put("/content", handleReplaceContent(deps))
			r.Get("/content", handleContentCounts(deps))
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
