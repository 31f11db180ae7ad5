package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig controls which responses are gzipped.
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, worth compressing.
	MinSize int
	// Level is a compress/gzip level. Invalid levels use the default.
	Level int
	// CompressibleTypes are the media types that get compressed.
	CompressibleTypes []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1KB or more.
// Thumbnails are JPEG already and progress streams are never buffered.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		Level:             gzip.DefaultCompression,
		CompressibleTypes: []string{"application/json", "text/plain"},
	}
}

const eventStreamType = "text/event-stream"

// mediaType strips parameters from a Content-Type or Accept value.
func mediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		first, _, _ := strings.Cut(v, ";")
		return strings.ToLower(strings.TrimSpace(first))
	}
	return mt
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if mediaType(enc) == "gzip" {
			return true
		}
	}
	return false
}

// Compression gzips responses the client accepts, once at least MinSize
// bytes of a compressible type have been written. Event streams pass
// through untouched so frames are not held back.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	compressible := make(map[string]bool, len(config.CompressibleTypes))
	for _, t := range config.CompressibleTypes {
		compressible[t] = true
	}
	pool := &sync.Pool{New: func() any {
		zw, err := gzip.NewWriterLevel(io.Discard, config.Level)
		if err != nil {
			zw = gzip.NewWriter(io.Discard)
		}
		return zw
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) || mediaType(r.Header.Get("Accept")) == eventStreamType {
				next.ServeHTTP(w, r)
				return
			}
			gw := &gzipResponseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
				minSize:        config.MinSize,
				compressible:   compressible,
				pool:           pool,
			}
			defer gw.Close()
			next.ServeHTTP(gw, r)
		})
	}
}

// gzipResponseWriter holds the body back until it can decide between plain
// and gzip output. After the decision it writes straight through.
type gzipResponseWriter struct {
	http.ResponseWriter
	status       int
	minSize      int
	compressible map[string]bool
	pool         *sync.Pool

	pending bytes.Buffer
	decided bool
	zw      *gzip.Writer
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.decided {
		return
	}
	g.status = code
	if mediaType(g.Header().Get("Content-Type")) == eventStreamType {
		g.decide()
	}
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	if g.decided {
		return g.out().Write(p)
	}
	g.pending.Write(p)
	if g.pending.Len() > g.minSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (g *gzipResponseWriter) out() io.Writer {
	if g.zw != nil {
		return g.zw
	}
	return g.ResponseWriter
}

// decide sends the header and the pending body, compressed or not.
func (g *gzipResponseWriter) decide() error {
	if g.decided {
		return nil
	}
	g.decided = true

	h := g.Header()
	if g.pending.Len() >= g.minSize && g.compressible[mediaType(h.Get("Content-Type"))] {
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.zw = g.pool.Get().(*gzip.Writer)
		g.zw.Reset(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(g.status)

	_, err := g.out().Write(g.pending.Bytes())
	g.pending = bytes.Buffer{}
	return err
}

// Close flushes what is pending and returns the gzip writer to the pool.
func (g *gzipResponseWriter) Close() error {
	err := g.decide()
	if g.zw == nil {
		return err
	}
	if cerr := g.zw.Close(); err == nil {
		err = cerr
	}
	g.pool.Put(g.zw)
	g.zw = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	g.decide()
	if g.zw != nil {
		g.zw.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}
