package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/gatekeeper"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/relay"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/stream"
)

const upstreamSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
	"data: [DONE]\n\n"

func sampleBundle() profile.Bundle {
	return profile.Bundle{
		Profile: &profile.Profile{FirstName: "Ada", LastName: "Lovelace", Headline: "Analyst"},
		Skills:  []profile.Skill{{Name: "Mathematics", Category: "Science"}},
	}
}

func staticBundle(b profile.Bundle) content.Source { return content.Static{Bundle: b} }

// mockUpstream returns a relay backed by an httptest.Server that mimics the
// chat completions endpoint.
func mockUpstream(t *testing.T, handler http.HandlerFunc) (*relay.Relay, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c := proxy.NewClientWithBaseURL("test-key", srv.URL, proxy.Options{})
	return relay.New(c, relay.Options{}), &calls
}

func sseHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func TestHealth(t *testing.T) {
	h := NewHandler(Deps{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestProfile(t *testing.T) {
	h := NewHandler(Deps{Content: staticBundle(sampleBundle())})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var b profile.Bundle
	if err := json.NewDecoder(rr.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if b.Profile == nil || b.Profile.FirstName != "Ada" {
		t.Errorf("Profile = %+v", b.Profile)
	}
}

func TestProfile_FetchError(t *testing.T) {
	h := NewHandler(Deps{Content: failingSource{err: errors.New("offline")}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestChat_Streaming(t *testing.T) {
	var gotReq proxy.ChatRequest
	rl, _ := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		sseHandler(upstreamSSE)(w, r)
	})
	h := NewHandler(Deps{Relay: rl, Content: staticBundle(sampleBundle())})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"What projects have you built?"}]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rr.Header().Get(GatekeptHeader) != "" {
		t.Error("accepted reply must not be marked gatekept")
	}
	if rr.Body.String() != upstreamSSE {
		t.Errorf("body not relayed verbatim:\n%q", rr.Body.String())
	}
	if !rr.Flushed {
		t.Error("expected response to be flushed")
	}

	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != proxy.RoleSystem {
		t.Fatalf("upstream messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "Ada Lovelace") {
		t.Errorf("system prompt not grounded in content source: %s", gotReq.Messages[0].Content)
	}
}

func TestChat_ShippedProfileData(t *testing.T) {
	var gotReq proxy.ChatRequest
	rl, _ := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		sseHandler(upstreamSSE)(w, r)
	})
	h := NewHandler(Deps{Relay: rl, Content: failingSource{err: errors.New("must not be called")}})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"Tell me about your skills"}],"profileData":{"profile":{"firstName":"Grace"}}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(gotReq.Messages[0].Content, "You are Grace") {
		t.Errorf("system prompt = %q", gotReq.Messages[0].Content)
	}
}

func TestChat_LooseLinksStillCompose(t *testing.T) {
	var gotReq proxy.ChatRequest
	rl, _ := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		sseHandler(upstreamSSE)(w, r)
	})
	h := NewHandler(Deps{Relay: rl})

	body := `{"messages":[{"role":"user","content":"Show me your projects"}],"profileData":{` +
		`"profile":{"firstName":"Ada","email":"ada at example"},` +
		`"projects":[{"title":"Engine","githubUrl":"github.com/ada/x","liveUrl":"ada.dev"}]}}`
	rr := postChat(t, h, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	system := gotReq.Messages[0].Content
	if !strings.HasPrefix(system, "You are Ada") {
		t.Errorf("system prompt = %q", system)
	}
	if !strings.Contains(system, "GitHub: github.com/ada/x") {
		t.Errorf("project link missing from prompt: %q", system)
	}
}

func TestChat_ContentFetchFailureDegrades(t *testing.T) {
	var gotReq proxy.ChatRequest
	rl, _ := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		sseHandler(upstreamSSE)(w, r)
	})
	h := NewHandler(Deps{Relay: rl, Content: failingSource{err: errors.New("offline")}})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"Tell me about your skills"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.HasPrefix(gotReq.Messages[0].Content, "You are a helpful AI assistant") {
		t.Errorf("expected fallback persona, got %q", gotReq.Messages[0].Content)
	}
}

func TestChat_Gatekept(t *testing.T) {
	rl, calls := mockUpstream(t, sseHandler(upstreamSSE))
	h := NewHandler(Deps{Relay: rl})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"What is the capital of France?"}]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get(GatekeptHeader) != "true" {
		t.Error("missing gatekept header")
	}
	if calls.Load() != 0 {
		t.Errorf("upstream called %d times for a gatekept question", calls.Load())
	}

	var got strings.Builder
	if _, err := stream.Decode(rr.Body, func(s string) error { got.WriteString(s); return nil }); err != nil {
		t.Fatal(err)
	}
	if got.String() != gatekeeper.MsgOutOfScope {
		t.Errorf("delta = %q", got.String())
	}
}

func TestChat_BadRequests(t *testing.T) {
	rl, calls := mockUpstream(t, sseHandler(upstreamSSE))
	h := NewHandler(Deps{Relay: rl})

	many := make([]string, 51)
	for i := range many {
		many[i] = `{"role":"user","content":"tell me about your work"}`
	}

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"system","content":"tell me about your work"}]}`},
		{"too many messages", `{"messages":[` + strings.Join(many, ",") + `]}`},
		{"no user message", `{"messages":[{"role":"assistant","content":"hello there"}]}`},
		{"invalid profile data", `{"messages":[{"role":"user","content":"tell me about your work"}],"profileData":{"skills":[{"name":"Go","percentage":300}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postChat(t, h, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
			if errorBody(t, rr) == "" {
				t.Error("missing error message")
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("upstream called %d times", calls.Load())
	}
}

func TestChat_BodyTooLarge(t *testing.T) {
	rl, _ := mockUpstream(t, sseHandler(upstreamSSE))
	h := NewHandler(Deps{Relay: rl, MaxBodyBytes: 64})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"`+strings.Repeat("a", 200)+`"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestChat_MissingCredential(t *testing.T) {
	c := proxy.NewClientWithBaseURL("", "http://127.0.0.1:1", proxy.Options{})
	h := NewHandler(Deps{Relay: relay.New(c, relay.Options{})})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"Tell me about your work"}]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := errorBody(t, rr); got != msgNotConfigured {
		t.Errorf("error = %q", got)
	}
}

func TestChat_UpstreamFailure(t *testing.T) {
	rl, calls := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})
	h := NewHandler(Deps{Relay: rl})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"Tell me about your work"}]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := errorBody(t, rr); got != msgChatFailed {
		t.Errorf("error = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want exactly 1", calls.Load())
	}
}

func TestChat_MidStreamFailure(t *testing.T) {
	rl, _ := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		// Fewer bytes than promised: the client sees an unexpected EOF.
	})
	h := NewHandler(Deps{Relay: rl})

	rr := postChat(t, h, `{"messages":[{"role":"user","content":"Tell me about your work"}]}`)
	body := rr.Body.String()
	if !strings.HasPrefix(body, "data: {\"choices\"") {
		t.Errorf("partial output not relayed: %q", body)
	}
	if !strings.HasSuffix(body, "data: {\"error\":\"Failed to process chat request\"}\n\n") {
		t.Errorf("missing in-stream error frame: %q", body)
	}
}

func TestChat_RateLimited(t *testing.T) {
	rl, _ := mockUpstream(t, sseHandler(upstreamSSE))
	h := NewHandler(Deps{Relay: rl, ChatRatePerMinute: 1, ChatBurst: 1})

	body := `{"messages":[{"role":"user","content":"Tell me about your work"}]}`
	if rr := postChat(t, h, body); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rr.Code)
	}
	rr := postChat(t, h, body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if errorBody(t, rr) == "" {
		t.Error("missing error message")
	}

	// Other routes are not limited.
	hr := httptest.NewRecorder()
	h.ServeHTTP(hr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if hr.Code != http.StatusOK {
		t.Errorf("/health status = %d", hr.Code)
	}
}

func TestIPLimiter_EvictsIdle(t *testing.T) {
	l := newIPLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	l.allow("10.0.0.3")
	if l.size() != 1 {
		t.Errorf("size after sweep = %d, want 1", l.size())
	}
}

func TestRequestID_ReusesValidHeader(t *testing.T) {
	h := NewHandler(Deps{})
	const id = "0b5c7a4e-8f2d-4b8b-9d0a-4a4f2f6a1e11"

	tests := []struct {
		in   string
		want func(string) bool
	}{
		{id, func(got string) bool { return got == id }},
		{"not-a-uuid", func(got string) bool { return got != "not-a-uuid" && got != "" }},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, tt.in)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get(RequestIDHeader); !tt.want(got) {
			t.Errorf("in %q: got %q", tt.in, got)
		}
	}
}

type memStore struct {
	bundle  profile.Bundle
	puts    int
	updated time.Time
}

func (m *memStore) ReplaceBundle(b profile.Bundle) error {
	m.bundle = b
	m.puts++
	m.updated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return nil
}

func (m *memStore) Counts() (map[string]int, error) {
	return map[string]int{"skill": len(m.bundle.Skills)}, nil
}

func (m *memStore) UpdatedAt() (time.Time, error) {
	if m.updated.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return m.updated, nil
}

func TestAdminContent(t *testing.T) {
	store := &memStore{}
	h := NewHandler(Deps{Store: store, AdminToken: "s3cret"})

	put := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/admin/content", strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	tests := []struct {
		name     string
		token    string
		body     string
		wantCode int
	}{
		{"no token", "", `{}`, http.StatusUnauthorized},
		{"wrong token", "nope", `{}`, http.StatusUnauthorized},
		{"bad json", "s3cret", `{`, http.StatusBadRequest},
		{"invalid bundle", "s3cret", `{"skills":[{"name":"Go","percentage":101}]}`, http.StatusBadRequest},
		{"ok", "s3cret", `{"skills":[{"name":"Go"},{"name":"SQL"}]}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := put(tt.token, tt.body); rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
	if store.puts != 1 || len(store.bundle.Skills) != 2 {
		t.Errorf("store = %+v", store)
	}
}

func TestAdminContent_Counts(t *testing.T) {
	store := &memStore{}
	h := NewHandler(Deps{Store: store, AdminToken: "s3cret"})

	get := func() map[string]any {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/admin/content", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		var body map[string]any
		json.NewDecoder(rr.Body).Decode(&body)
		return body
	}

	if body := get(); body["updatedAt"] != nil {
		t.Errorf("updatedAt before any import = %v", body["updatedAt"])
	}

	store.ReplaceBundle(profile.Bundle{Skills: []profile.Skill{{Name: "Go"}}})
	body := get()
	if body["updatedAt"] != "2026-03-01T12:00:00Z" {
		t.Errorf("updatedAt = %v", body["updatedAt"])
	}
	if counts, _ := body["counts"].(map[string]any); counts["skill"] != float64(1) {
		t.Errorf("counts = %v", body["counts"])
	}
}

func TestAdminContent_DisabledWithoutToken(t *testing.T) {
	h := NewHandler(Deps{Store: &memStore{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/admin/content", strings.NewReader(`{}`)))
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want route to be absent", rr.Code)
	}
}

type failingWriter struct{ writes int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	return 0, errors.New("connection reset")
}

func TestWriteGatekept(t *testing.T) {
	var buf strings.Builder
	if err := writeGatekept(&buf, gatekeeper.MsgTooShort); err != nil {
		t.Fatalf("writeGatekept: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "data: [DONE]\n\n") || !strings.Contains(buf.String(), "more specific question") {
		t.Errorf("frames = %q", buf.String())
	}

	fw := &failingWriter{}
	if err := writeGatekept(fw, gatekeeper.MsgTooShort); err == nil {
		t.Fatal("expected write error")
	}
	if fw.writes != 1 {
		t.Errorf("writes after failure = %d, want 1", fw.writes)
	}
}
