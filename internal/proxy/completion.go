package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	defaultFirstByteTimeout = 30 * time.Second
	defaultIdleTimeout      = 30 * time.Second
	defaultStreamTimeout    = 300 * time.Second
	listTimeout             = 15 * time.Second

	// maxErrorBody caps how much of a failed response is kept for logging.
	maxErrorBody = 2048
)

// Options bound how long a single completion call may take.
type Options struct {
	// FirstByteTimeout limits the wait for response headers.
	FirstByteTimeout time.Duration
	// IdleTimeout limits the gap between two reads of the streamed body.
	IdleTimeout time.Duration
	// StreamTimeout caps the whole call, body included.
	StreamTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.FirstByteTimeout <= 0 {
		o.FirstByteTimeout = defaultFirstByteTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = defaultStreamTimeout
	}
	return o
}

// Client talks to an OpenAI-compatible chat completion API.
type Client struct {
	apiKey     string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// NewClient creates a client for the default backend.
func NewClient(apiKey string, opts Options) *Client {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL, opts)
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string, opts Options) *Client {
	opts = opts.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.FirstByteTimeout

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		// No client-level Timeout: it would also cut off long streams.
		httpClient: &http.Client{Transport: transport},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Chat sends one chat completion request and returns the response body. For
// streaming requests the body carries "data: " frames. The caller must close
// it. There is exactly one attempt per call.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return newIdleReader(resp.Body, c.opts.IdleTimeout, cancel), nil
}

// idleReader cancels the request when no read completes within idle, and
// releases the request context on Close.
type idleReader struct {
	rc     io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
}

func newIdleReader(rc io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleReader {
	return &idleReader{
		rc:     rc,
		idle:   idle,
		timer:  time.AfterFunc(idle, cancel),
		cancel: cancel,
	}
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

func (r *idleReader) Close() error {
	r.timer.Stop()
	err := r.rc.Close()
	r.cancel()
	return err
}

// ListModels returns the models the backend serves.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
