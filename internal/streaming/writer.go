package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"
)

var (
	// ErrWriteTimeout is returned when one write outlasts the write timeout,
	// usually because the client stopped reading.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone is returned once the request context is done.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamClosed is returned by writes after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// DefaultWriteTimeout bounds a single progress frame write. There is no
// idle limit: a run can sit on one large file for minutes between frames.
const DefaultWriteTimeout = 30 * time.Second

// TimeoutWriter keeps a stalled client from blocking a run. Each write gets
// its own deadline, set on the connection when the server supports it and
// enforced with a timer otherwise. The first failure is sticky.
type TimeoutWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	ctx     context.Context
	timeout time.Duration

	mu      sync.Mutex
	err     error
	written int64
	started time.Time
}

// NewTimeoutWriter wraps w. Writes fail with ErrClientGone once ctx is done.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, timeout time.Duration) *TimeoutWriter {
	return &TimeoutWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		ctx:     ctx,
		timeout: timeout,
		started: time.Now(),
	}
}

func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.err != nil {
		return 0, tw.err
	}
	if tw.ctx.Err() != nil {
		tw.err = ErrClientGone
		return 0, tw.err
	}

	n, err := tw.write(p)
	tw.written += int64(n)
	if err != nil {
		tw.err = err
	}
	return n, err
}

func (tw *TimeoutWriter) write(p []byte) (int, error) {
	if err := tw.rc.SetWriteDeadline(time.Now().Add(tw.timeout)); err == nil {
		n, err := tw.w.Write(p)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = ErrWriteTimeout
		}
		return n, err
	}

	// No deadline support: write in the background and stop waiting on
	// timeout. The stuck write is abandoned along with the stream.
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tw.w.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(tw.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, ErrClientGone
	}
}

// Flush pushes written frames to the client.
func (tw *TimeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.err == nil {
		_ = tw.rc.Flush()
	}
}

// Close makes later writes fail with ErrStreamClosed and clears the write
// deadline so it does not carry over to the next request on the connection.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.err == nil || errors.Is(tw.err, ErrClientGone) {
		tw.err = ErrStreamClosed
	}
	_ = tw.rc.SetWriteDeadline(time.Time{})
	return nil
}

// Stats returns the bytes written and the time since the writer was created.
func (tw *TimeoutWriter) Stats() (written int64, elapsed time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written, time.Since(tw.started)
}
