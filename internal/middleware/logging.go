package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/logging"
)

// LoggingConfig controls which requests reach the access log.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths []string
	// LogHealthChecks keeps the Kubernetes probes in the log. They fire
	// every few seconds, so deployments usually turn this off.
	LogHealthChecks bool
}

// DefaultLoggingConfig skips /metrics and logs everything else.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{"/metrics"},
		LogHealthChecks: true,
	}
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger writes one access log line per request in W3C extended format:
//
//	date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(Content-Encoding) cs(User-Agent) cs(Referer)
//
// time-taken is in milliseconds. For a progress stream the line is written
// when the run ends, so sc-bytes covers every frame.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	log := logging.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			log.Info("%s", accessLine(r, rec, start))
		})
	}
}

func accessLine(r *http.Request, rec *recorder, start time.Time) string {
	now := time.Now().UTC()
	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		orDash(getClientIP(r)),
		orDash(r.Method),
		orDash(r.URL.Path),
		orDash(r.URL.RawQuery),
		strconv.Itoa(rec.status),
		strconv.FormatInt(rec.size, 10),
		strconv.FormatInt(time.Since(start).Milliseconds(), 10),
		orDash(rec.Header().Get("Content-Encoding")),
		quoteField(r.Header.Get("User-Agent")),
		orDash(r.Header.Get("Referer")),
	}
	return strings.Join(fields, " ")
}

func shouldSkip(path string, config LoggingConfig) bool {
	if !config.LogHealthChecks && probePaths[path] {
		return true
	}
	return hasPrefix(path, config.SkipPaths)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sanitizeLogField drops control characters from a client supplied value so
// it cannot forge log lines or emit terminal escapes. Newlines become spaces;
// tabs are kept.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20:
			return -1
		}
		return r
	}, s)
}

func orDash(s string) string {
	s = sanitizeLogField(s)
	if s == "" {
		return "-"
	}
	return s
}

// quoteField wraps values containing whitespace or quotes in double quotes,
// doubling embedded quotes.
func quoteField(s string) string {
	s = orDash(s)
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
