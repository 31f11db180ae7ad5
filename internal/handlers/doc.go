// Package handlers provides the HTTP API of the media catalog.
//
// It includes handlers for:
//   - Batch processing runs streamed as progress frames, and their abort
//   - Ledger statistics, failed items and resets per operation
//   - Background jobs and schedules
//   - Catalog browsing, item detail and single-item processing
//   - Thumbnails served from blob storage
//   - File type policy and scan folder administration
//   - Scans, health checks and build information
//
// Router wires every handler onto a gorilla/mux router.
package handlers
