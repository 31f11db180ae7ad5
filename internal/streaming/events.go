package streaming

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/progress"
)

const dataPrefix = "data: "

// EncodeFrame renders ev as a single "data: <json>\n\n" frame. The event is
// normalized first so every frame carries a timestamp and percentage.
func EncodeFrame(ev progress.Event) ([]byte, error) {
	ev.Normalize()
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode progress event: %w", err)
	}

	buf := make([]byte, 0, len(dataPrefix)+len(payload)+2)
	buf = append(buf, dataPrefix...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}

// EventStream writes progress events to an HTTP client as server-sent events.
type EventStream struct {
	mu     sync.Mutex
	tw     *TimeoutWriter
	closed bool
	frames int
}

// NewEventStream sets the event-stream headers, sends them, and returns a
// stream bound to ctx (normally the request context).
func NewEventStream(ctx context.Context, w http.ResponseWriter) *EventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &EventStream{tw: NewTimeoutWriter(ctx, w, DefaultWriteTimeout)}
	s.tw.Flush()
	return s
}

// Emit writes one frame and flushes it. Concurrent calls are serialized.
func (s *EventStream) Emit(_ context.Context, ev progress.Event) error {
	frame, err := EncodeFrame(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	if _, err := s.tw.Write(frame); err != nil {
		return err
	}
	s.tw.Flush()
	s.frames++
	metrics.ProgressFramesTotal.WithLabelValues(string(ev.Status)).Inc()
	return nil
}

// Frames returns the number of frames written so far.
func (s *EventStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close ends the stream. Calls after the first are no-ops.
func (s *EventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	bytesWritten, duration := s.tw.Stats()
	logging.Debug("Event stream closed: %d frames, %d bytes in %v", s.frames, bytesWritten, duration)
	return s.tw.Close()
}

// FrameWriter writes frames to a plain io.Writer, such as stdout.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter returns a FrameWriter around w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Emit writes one frame.
func (fw *FrameWriter) Emit(_ context.Context, ev progress.Event) error {
	frame, err := EncodeFrame(ev)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err = fw.w.Write(frame)
	return err
}

// FrameReader decodes frames written by EventStream or FrameWriter. Lines
// that are not data lines (comments, event names) are ignored.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader returns a reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF once the input is exhausted.
func (fr *FrameReader) Next() (progress.Event, error) {
	var data bytes.Buffer

	for {
		line, err := fr.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return progress.Event{}, err
		}
		eof := err == io.EOF

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data.Len() > 0 {
				return decodeData(data.Bytes())
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			if data.Len() > 0 {
				return decodeData(data.Bytes())
			}
			return progress.Event{}, io.EOF
		}
	}
}

func decodeData(b []byte) (progress.Event, error) {
	var ev progress.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return progress.Event{}, fmt.Errorf("decode progress frame: %w", err)
	}
	return ev, nil
}

// ReadAll decodes every frame in r.
func ReadAll(r io.Reader) ([]progress.Event, error) {
	fr := NewFrameReader(r)
	var events []progress.Event
	for {
		ev, err := fr.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
