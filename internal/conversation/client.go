package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/folio/internal/gatekeeper"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/stream"
)

// Client talks to a folio server's /chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// means http.DefaultClient. Streams are long-lived, so the client should
// carry no overall timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// HTTPError is a non-200 answer from /chat.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

type chatBody struct {
	Messages    []proxy.Message `json:"messages"`
	ProfileData *profile.Bundle `json:"profileData,omitempty"`
}

// Send appends question to sess and streams the reply into a new assistant
// turn, calling onUpdate with the accumulated text after every delta.
// Questions the local gate rejects are answered without a network call.
// bundle may be nil, in which case the server reads its own content.
// On failure ErrorReply is added as an assistant turn, after any partial
// reply, and the error is returned.
func (c *Client) Send(ctx context.Context, sess *Session, question string, bundle *profile.Bundle, onUpdate func(text string)) (string, error) {
	if onUpdate == nil {
		onUpdate = func(string) {}
	}
	sess.AddUser(question)

	if v := gatekeeper.Classify(question); !v.Relevant {
		msg := v.RejectionMessage()
		sess.AddAssistant(msg)
		onUpdate(msg)
		return msg, nil
	}

	payload, err := json.Marshal(chatBody{Messages: sess.Upstream(), ProfileData: bundle})
	if err != nil {
		return c.fail(sess, "", onUpdate, fmt.Errorf("encoding request: %w", err))
	}
	id := sess.AddAssistant("")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return c.fail(sess, id, onUpdate, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(sess, id, onUpdate, fmt.Errorf("sending chat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fail(sess, id, onUpdate, readHTTPError(resp))
	}

	var text string
	_, err = stream.Decode(resp.Body, func(delta string) error {
		text = sess.Append(id, delta)
		onUpdate(text)
		return nil
	})
	if err != nil {
		return c.fail(sess, id, onUpdate, fmt.Errorf("reading reply stream: %w", err))
	}
	return text, nil
}

// fail records ErrorReply after the assistant turn id. Text already
// streamed into that turn is kept; an empty turn is reused.
func (c *Client) fail(sess *Session, id string, onUpdate func(string), err error) (string, error) {
	if id != "" && sess.content(id) == "" {
		sess.Replace(id, ErrorReply)
	} else {
		sess.AddAssistant(ErrorReply)
	}
	onUpdate(ErrorReply)
	return ErrorReply, err
}

func readHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &HTTPError{Code: resp.StatusCode, Message: e.Error}
	}
	return &HTTPError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
