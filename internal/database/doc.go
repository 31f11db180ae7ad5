// Package database provides SQLite storage for the media catalog.
//
// It holds:
//   - media_items: one row per indexed file
//   - file_types: the per-extension category and ignore policy
//   - processing_states: the ledger, one row per (item, operation)
//   - scan_folders and metadata: scanner roots and run bookkeeping
//
// The ledger and the unprocessed-item finder are the storage half of the
// batch pipeline. Ledger writes go straight to the database so the next
// FindUnprocessed call sees them. The finder's Since cutoff excludes rows
// written during the current run, which guarantees a run terminates.
//
// The database uses WAL mode and foreign keys; deleting an item removes its
// ledger rows.
package database
