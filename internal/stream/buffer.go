package stream

import (
	"bytes"
	"errors"
	"io"
)

// LineBuffer reassembles frames from reads that split lines at arbitrary
// points. It holds the unterminated tail of the last read until the next
// Feed. One buffer serves one stream and is not safe for concurrent use.
type LineBuffer struct {
	pending []byte
}

// Feed appends p and returns the frames completed by it, in order.
func (b *LineBuffer) Feed(p []byte) []Frame {
	b.pending = append(b.pending, p...)

	var frames []Frame
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		if f, ok := ParseLine(b.pending[:i]); ok {
			frames = append(frames, f)
		}
		b.pending = b.pending[i+1:]
	}

	// Reclaim the consumed prefix once nothing is left over.
	if len(b.pending) == 0 {
		b.pending = b.pending[:0:0]
	}
	return frames
}

// Flush returns a final frame for an unterminated trailing line, if any, and
// resets the buffer.
func (b *LineBuffer) Flush() []Frame {
	if len(b.pending) == 0 {
		return nil
	}
	f, ok := ParseLine(b.pending)
	b.pending = nil
	if !ok {
		return nil
	}
	return []Frame{f}
}

// Pending returns the number of buffered bytes not yet part of a line.
func (b *LineBuffer) Pending() int {
	return len(b.pending)
}

// Stats summarizes a decoded stream.
type Stats struct {
	Frames    int
	Malformed int
	Bytes     int
	Done      bool
}

// Decode reads r until the sentinel or EOF and calls fn for every non-empty
// content delta in arrival order. Malformed frames are counted and skipped.
// An error frame stops decoding with a *StreamError. An error from fn stops
// decoding and is returned.
func Decode(r io.Reader, fn func(delta string) error) (Stats, error) {
	var (
		lb    LineBuffer
		stats Stats
		buf   = make([]byte, 4096)
	)

	handle := func(frames []Frame) (bool, error) {
		for _, f := range frames {
			stats.Frames++
			if f.Done() {
				stats.Done = true
				return true, nil
			}
			if msg, ok := f.ErrorMessage(); ok {
				return true, &StreamError{Message: msg}
			}
			delta, err := f.Delta()
			if err != nil {
				stats.Malformed++
				continue
			}
			if delta == "" {
				continue
			}
			stats.Bytes += len(delta)
			if err := fn(delta); err != nil {
				return true, err
			}
		}
		return false, nil
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if stop, ferr := handle(lb.Feed(buf[:n])); stop {
				return stats, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			_, ferr := handle(lb.Flush())
			return stats, ferr
		}
		if err != nil {
			return stats, err
		}
	}
}
