package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/gatekeeper"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
)

type fakeCompleter struct {
	configured bool
	body       string
	err        error

	calls int
	last  proxy.ChatRequest
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Chat(_ context.Context, req proxy.ChatRequest) (io.ReadCloser, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func userTurn(q string) Turn {
	return Turn{
		Messages: []proxy.Message{{Role: proxy.RoleUser, Content: q}},
		Bundle:   profile.Bundle{Profile: &profile.Profile{FirstName: "Ada"}},
	}
}

func TestHandle_MissingCredential(t *testing.T) {
	fc := &fakeCompleter{configured: false}
	r := New(fc, Options{})

	_, err := r.Handle(context.Background(), userTurn("Tell me about your projects"))
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T, want *ConfigurationError", err)
	}
	if fc.calls != 0 {
		t.Errorf("upstream called %d times, want 0", fc.calls)
	}
}

func TestHandle_NilCompleter(t *testing.T) {
	r := New(nil, Options{})
	if _, err := r.Handle(context.Background(), userTurn("Tell me about your projects")); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
}

func TestHandle_Gatekept(t *testing.T) {
	fc := &fakeCompleter{configured: true}
	r := New(fc, Options{})

	reply, err := r.Handle(context.Background(), userTurn("what is the capital of France"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !reply.Gatekept {
		t.Fatal("Gatekept = false, want true")
	}
	if reply.Message != gatekeeper.MsgOutOfScope {
		t.Errorf("Message = %q", reply.Message)
	}
	if reply.Body != nil {
		t.Error("gatekept reply carries a body")
	}
	if fc.calls != 0 {
		t.Errorf("upstream called %d times, want 0", fc.calls)
	}
}

func TestHandle_GatesNewestUserMessage(t *testing.T) {
	fc := &fakeCompleter{configured: true, body: "data: [DONE]\n\n"}
	r := New(fc, Options{})

	turn := Turn{Messages: []proxy.Message{
		{Role: proxy.RoleUser, Content: "hi"},
		{Role: proxy.RoleAssistant, Content: gatekeeper.MsgTooShort},
		{Role: proxy.RoleUser, Content: "What projects have you built?"},
	}}
	reply, err := r.Handle(context.Background(), turn)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Gatekept {
		t.Fatal("newest question was gatekept")
	}
	reply.Body.Close()
}

func TestHandle_NoQuestion(t *testing.T) {
	r := New(&fakeCompleter{configured: true}, Options{})
	turn := Turn{Messages: []proxy.Message{{Role: proxy.RoleAssistant, Content: "hello"}}}
	if _, err := r.Handle(context.Background(), turn); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("err = %v, want ErrNoQuestion", err)
	}
}

func TestHandle_Accepted(t *testing.T) {
	fc := &fakeCompleter{configured: true, body: "data: [DONE]\n\n"}
	r := New(fc, Options{})

	turn := userTurn("Tell me about your experience")
	reply, err := r.Handle(context.Background(), turn)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer reply.Body.Close()

	if reply.Gatekept {
		t.Fatal("accepted question was gatekept")
	}
	req := fc.last
	if req.Model != DefaultModel || req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens || !req.Stream {
		t.Errorf("request = %+v, want defaults with streaming", req)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != proxy.RoleSystem || req.Messages[0].Content != composer.Compose(turn.Bundle) {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if req.Messages[1] != turn.Messages[0] {
		t.Errorf("user message = %+v", req.Messages[1])
	}
}

func TestHandle_OptionsOverride(t *testing.T) {
	fc := &fakeCompleter{configured: true, body: ""}
	r := New(fc, Options{Model: "llama-3.3-70b-versatile", Temperature: 0.2, MaxTokens: 256})

	reply, err := r.Handle(context.Background(), userTurn("Tell me about your skills"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	reply.Body.Close()

	if fc.last.Model != "llama-3.3-70b-versatile" || fc.last.Temperature != 0.2 || fc.last.MaxTokens != 256 {
		t.Errorf("request = %+v", fc.last)
	}
}

func TestHandle_UpstreamError(t *testing.T) {
	cause := &proxy.StatusError{Code: 503}
	fc := &fakeCompleter{configured: true, err: cause}
	r := New(fc, Options{})

	_, err := r.Handle(context.Background(), userTurn("Tell me about your experience"))
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	var se *proxy.StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Errorf("cause not preserved: %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("upstream called %d times, want exactly 1", fc.calls)
	}
}

type countingFlusher struct{ n int }

func (c *countingFlusher) Flush() { c.n++ }

func TestPipe_PassThrough(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {oops\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var out bytes.Buffer
	f := &countingFlusher{}
	stats, err := Pipe(context.Background(), &out, f, iotest.HalfReader(strings.NewReader(body)))
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if out.String() != body {
		t.Errorf("output differs from upstream body:\n%q", out.String())
	}
	if f.n == 0 {
		t.Error("writer was never flushed")
	}
	if !stats.Done || stats.Frames != 4 || stats.Malformed != 1 || stats.Content != len("Hello there") {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Bytes != len(body) {
		t.Errorf("Bytes = %d, want %d", stats.Bytes, len(body))
	}
}

func TestPipe_ReadErrorBeforeDone(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"), iotest.ErrReader(boom))

	var out bytes.Buffer
	_, err := Pipe(context.Background(), &out, nil, r)
	var ue *UpstreamError
	if !errors.As(err, &ue) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want *UpstreamError wrapping %v", err, boom)
	}
	if !strings.Contains(out.String(), "Hi") {
		t.Error("partial output was not delivered")
	}
}

func TestPipe_ReadErrorAfterDone(t *testing.T) {
	r := io.MultiReader(strings.NewReader("data: [DONE]\n\n"), iotest.ErrReader(errors.New("late reset")))
	if _, err := Pipe(context.Background(), io.Discard, nil, r); err != nil {
		t.Fatalf("err = %v, want nil once the sentinel was seen", err)
	}
}

func TestPipe_ClientCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := iotest.ErrReader(context.Canceled)
	_, err := Pipe(ctx, io.Discard, nil, r)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		t.Error("client cancellation reported as upstream failure")
	}
}
