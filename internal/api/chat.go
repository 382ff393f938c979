package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/relay"
	"github.com/kalambet/folio/internal/stream"
	"github.com/kalambet/folio/internal/telemetry"
)

// GatekeptHeader marks a reply synthesized without calling upstream.
const GatekeptHeader = "X-Folio-Gatekept"

const (
	msgNotConfigured = "chat backend is not configured"
	msgChatFailed    = "Failed to process chat request"
)

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=16000"`
}

type chatRequest struct {
	Messages    []chatMessage   `json:"messages" validate:"required,min=1,max=50,dive"`
	ProfileData *profile.Bundle `json:"profileData,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxBodyBytes)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := profile.Validator().Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, profile.Describe(errors.New("invalid request"), err).Error())
			return
		}

		ctx := r.Context()
		bundle, err := requestBundle(ctx, deps, req.ProfileData)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		msgs := make([]proxy.Message, len(req.Messages))
		for i, m := range req.Messages {
			msgs[i] = proxy.Message{Role: m.Role, Content: m.Content}
		}

		reply, err := deps.Relay.Handle(ctx, relay.Turn{Messages: msgs, Bundle: bundle})
		if err != nil {
			writeRelayError(ctx, w, err)
			return
		}

		flusher, _ := w.(http.Flusher)
		setStreamHeaders(w)

		if reply.Gatekept {
			w.Header().Set(GatekeptHeader, "true")
			w.WriteHeader(http.StatusOK)
			telemetry.AddBreadcrumb(ctx, "chat", "question gatekept")
			if err := writeGatekept(w, reply.Message); err != nil {
				slog.Debug("writing gatekept reply failed", "error", err, "request_id", GetRequestID(ctx))
			}
			if flusher != nil {
				flusher.Flush()
			}
			return
		}

		defer reply.Body.Close()
		telemetry.AddBreadcrumb(ctx, "chat", "upstream stream opened")
		w.WriteHeader(http.StatusOK)
		if flusher != nil {
			flusher.Flush()
		}

		stats, err := relay.Pipe(ctx, w, flusher, reply.Body)
		slog.Debug("stream relayed",
			"frames", stats.Frames,
			"bytes", stats.Bytes,
			"content_bytes", stats.Content,
			"malformed", stats.Malformed,
			"done", stats.Done,
			"request_id", GetRequestID(ctx),
		)
		switch {
		case err == nil:
			if !stats.Done {
				slog.Warn("upstream stream ended without done sentinel", "request_id", GetRequestID(ctx))
			}
		case ctx.Err() != nil:
			slog.Debug("client disconnected mid-stream", "request_id", GetRequestID(ctx))
		default:
			var ue *relay.UpstreamError
			if errors.As(err, &ue) {
				slog.Error("upstream stream failed", "error", err, "request_id", GetRequestID(ctx))
				telemetry.CaptureError(ctx, err)
				stream.WriteError(w, msgChatFailed)
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}
}

func writeGatekept(w io.Writer, msg string) error {
	if err := stream.WriteDelta(w, msg); err != nil {
		return err
	}
	return stream.WriteDone(w)
}

// requestBundle returns the bundle shipped with the request, or fetches the
// current one. A failed fetch degrades to an empty bundle so the visitor
// still gets the generic persona.
func requestBundle(ctx context.Context, deps Deps, shipped *profile.Bundle) (profile.Bundle, error) {
	if shipped != nil {
		if err := profile.Validate(*shipped); err != nil {
			return profile.Bundle{}, err
		}
		return *shipped, nil
	}
	b, err := deps.Content.Fetch(ctx)
	if err != nil {
		slog.Warn("content fetch failed, using empty profile", "error", err, "request_id", GetRequestID(ctx))
		telemetry.CaptureError(ctx, err)
		return profile.Bundle{}, nil
	}
	return b, nil
}

func writeRelayError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		cfgErr    *relay.ConfigurationError
		upErr     *relay.UpstreamError
		statusErr *proxy.StatusError
	)
	switch {
	case errors.As(err, &cfgErr):
		slog.Error("chat request rejected", "error", err)
		telemetry.CaptureError(ctx, err)
		writeError(w, http.StatusInternalServerError, msgNotConfigured)
	case errors.Is(err, relay.ErrNoQuestion):
		writeError(w, http.StatusBadRequest, "messages must include a user message")
	case errors.As(err, &statusErr):
		slog.Error("upstream rejected completion", "status", statusErr.Code, "request_id", GetRequestID(ctx))
		telemetry.CaptureError(ctx, err)
		writeError(w, http.StatusInternalServerError, msgChatFailed)
	case errors.As(err, &upErr) && ctx.Err() != nil:
		slog.Debug("client went away before upstream answered", "request_id", GetRequestID(ctx))
	default:
		slog.Error("chat request failed", "error", err, "request_id", GetRequestID(ctx))
		telemetry.CaptureError(ctx, err)
		writeError(w, http.StatusInternalServerError, msgChatFailed)
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}
