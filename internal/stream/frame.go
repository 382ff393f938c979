// Package stream decodes and writes the line-delimited "data: " framing used
// by streaming chat completion APIs.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// Prefix starts every data line.
	Prefix = "data: "
	// DoneSentinel is the payload of the final frame.
	DoneSentinel = "[DONE]"
)

// Frame is one data line with the prefix removed.
type Frame struct {
	Payload string
}

// Done reports whether this is the end-of-stream sentinel.
func (f Frame) Done() bool {
	return f.Payload == DoneSentinel
}

// MalformedFrameError is returned for a frame whose payload is not the
// expected JSON. Consumers skip such frames and keep reading.
type MalformedFrameError struct {
	Payload string
	Err     error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", truncate(e.Payload, 64), e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Delta decodes choices[0].delta.content. A valid frame without choices
// yields an empty string. The sentinel must be checked with Done first.
func (f Frame) Delta() (string, error) {
	var c chunk
	if err := json.Unmarshal([]byte(f.Payload), &c); err != nil {
		return "", &MalformedFrameError{Payload: f.Payload, Err: err}
	}
	if len(c.Choices) == 0 {
		return "", nil
	}
	return c.Choices[0].Delta.Content, nil
}

// StreamError is an error frame received in place of further content.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}

// ErrorMessage reports the message of an error frame. Both the relay's
// {"error":"..."} form and the upstream {"error":{"message":"..."}} form are
// recognized.
func (f Frame) ErrorMessage() (string, bool) {
	var c chunk
	if err := json.Unmarshal([]byte(f.Payload), &c); err != nil || len(c.Error) == 0 || string(c.Error) == "null" {
		return "", false
	}
	var msg string
	if json.Unmarshal(c.Error, &msg) == nil {
		return msg, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(c.Error, &obj) == nil && obj.Message != "" {
		return obj.Message, true
	}
	return string(c.Error), true
}

// ParseLine extracts a frame from one line. Lines without the data prefix,
// such as blank separators or comments, yield false.
func ParseLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte(Prefix)) {
		return Frame{}, false
	}
	return Frame{Payload: string(line[len(Prefix):])}, true
}

// WriteDelta writes one content frame in the upstream chunk format.
func WriteDelta(w io.Writer, content string) error {
	payload, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": content}}},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", Prefix, payload)
	return err
}

// WriteError writes an in-stream error frame.
func WriteError(w io.Writer, msg string) error {
	payload, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", Prefix, payload)
	return err
}

// WriteDone writes the end-of-stream sentinel.
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, Prefix+DoneSentinel+"\n\n")
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
