// Package middleware provides HTTP middleware for the media catalog API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - gzip compression of JSON responses, with event streams passed through
//   - Prometheus request metrics labelled by route template
package middleware
