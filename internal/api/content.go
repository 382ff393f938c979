package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/telemetry"
)

func handleProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := deps.Content.Fetch(r.Context())
		if err != nil {
			slog.Error("content fetch failed", "error", err, "request_id", GetRequestID(r.Context()))
			telemetry.CaptureError(r.Context(), err)
			writeError(w, http.StatusBadGateway, "failed to load profile")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, b)
	}
}

func handleReplaceContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxBodyBytes)
		defer r.Body.Close()

		var b profile.Bundle
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, "invalid bundle body")
			return
		}
		if err := profile.Validate(b); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := deps.Store.ReplaceBundle(b); err != nil {
			slog.Error("replacing content failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store content")
			return
		}
		slog.Info("content replaced",
			"experience", len(b.Experience),
			"projects", len(b.Projects),
			"skills", len(b.Skills),
			"education", len(b.Education),
		)
		handleContentCounts(deps)(w, r)
	}
}

func handleContentCounts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Store.Counts()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count content")
			return
		}
		resp := map[string]any{"status": "ok", "counts": counts}
		switch at, err := deps.Store.UpdatedAt(); {
		case err == nil:
			resp["updatedAt"] = at.Format(time.RFC3339)
		case !errors.Is(err, storage.ErrNotFound):
			slog.Warn("reading content update time", "error", err)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
