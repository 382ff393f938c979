// Package relay turns a visitor conversation into a streamed completion:
// credential check, relevance gate, persona prompt, single upstream call.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/gatekeeper"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/stream"
)

const (
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Completer issues streaming chat completions.
type Completer interface {
	Configured() bool
	Chat(ctx context.Context, req proxy.ChatRequest) (io.ReadCloser, error)
}

// Options select the model and sampling for every upstream call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Turn is one visitor submission: the conversation so far, greeting
// excluded, and the profile to ground answers in.
type Turn struct {
	Messages []proxy.Message
	Bundle   profile.Bundle
}

// Reply is either a gatekept message or a live upstream body.
type Reply struct {
	Gatekept bool
	Message  string
	// Body is the upstream byte stream. The caller must close it.
	Body io.ReadCloser
}

// Relay is stateless and safe for concurrent use.
type Relay struct {
	completer Completer
	opts      Options
}

// New creates a relay. Zero option fields take the defaults.
func New(c Completer, opts Options) *Relay {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Relay{completer: c, opts: opts}
}

// Handle runs one turn. A rejected question returns a gatekept Reply and no
// upstream call is made. Failures are *ConfigurationError, ErrNoQuestion or
// *UpstreamError.
func (r *Relay) Handle(ctx context.Context, t Turn) (*Reply, error) {
	if r.completer == nil || !r.completer.Configured() {
		return nil, ErrMissingCredential
	}

	question, ok := lastUserMessage(t.Messages)
	if !ok {
		return nil, ErrNoQuestion
	}

	verdict, rule := gatekeeper.Explain(question)
	if !verdict.Relevant {
		slog.Debug("question gatekept", "rule", rule)
		return &Reply{Gatekept: true, Message: verdict.RejectionMessage()}, nil
	}

	system := composer.Compose(t.Bundle)
	req := proxy.ChatRequest{
		Model:       r.opts.Model,
		Messages:    composer.WithSystem(system, t.Messages),
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
		Stream:      true,
	}
	slog.Debug("forwarding question",
		"rule", rule,
		"model", req.Model,
		"messages", len(req.Messages),
		"system_tokens", composer.EstimateTokens(system),
	)

	body, err := r.completer.Chat(ctx, req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	return &Reply{Body: body}, nil
}

func lastUserMessage(msgs []proxy.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == proxy.RoleUser {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// Flusher pushes buffered output to the client.
type Flusher interface {
	Flush()
}

// PipeStats describe one relayed stream.
type PipeStats struct {
	Bytes     int
	Frames    int
	Malformed int
	Content   int
	Done      bool
}

// Pipe copies body to w unmodified, flushing after every read so chunks
// reach the client in arrival order. A request-scoped line buffer watches
// the bytes go by to count frames and spot the end sentinel. A read failure
// before the sentinel is returned as *UpstreamError. Whatever was already
// written stays written.
func Pipe(ctx context.Context, w io.Writer, f Flusher, body io.Reader) (PipeStats, error) {
	var (
		lb    stream.LineBuffer
		stats PipeStats
		buf   = make([]byte, 32*1024)
	)

	observe := func(frames []stream.Frame) {
		for _, fr := range frames {
			stats.Frames++
			if fr.Done() {
				stats.Done = true
				continue
			}
			delta, err := fr.Delta()
			if err != nil {
				stats.Malformed++
				continue
			}
			stats.Content += len(delta)
		}
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// The client went away; nothing left to deliver to.
				return stats, werr
			}
			if f != nil {
				f.Flush()
			}
			stats.Bytes += n
			observe(lb.Feed(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			observe(lb.Flush())
			return stats, nil
		}
		if err != nil {
			switch {
			case stats.Done:
				return stats, nil
			case ctx.Err() != nil:
				return stats, ctx.Err()
			default:
				return stats, &UpstreamError{Err: err}
			}
		}
	}
}
