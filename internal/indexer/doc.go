// Package indexer keeps the catalog's media_items table in sync with the
// folders on disk.
//
// A scan covers MEDIA_DIR (always recursive) plus every scan_folders row.
// For each root it:
//   - walks the tree, skipping hidden files and directories (prefixed with '.')
//   - stats files with a pool of workers sized by workers.ForIO
//   - registers unseen extensions as file types (category other when unknown)
//   - upserts items in batched transactions; a changed size or modification
//     time clears the item's processing states
//   - removes items under the root that the scan did not see
//
// A root that cannot be read is skipped and keeps its items, so an unmounted
// network share does not empty the catalog.
//
// Scans run once at startup, every INDEX_INTERVAL afterwards, and on demand
// through POST /api/scan or "catalogctl scan". Only one scan runs at a time;
// a second caller gets ErrScanInProgress. Progress can be streamed with the
// same event schema the batch driver uses, with operation "scan".
package indexer
