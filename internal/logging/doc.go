// Package logging is the catalog's leveled logger, a thin layer over the
// standard log package.
//
// Lines are tagged [DEBUG], [INFO], [WARN] or [ERROR]. The level comes from
// LOG_LEVEL, or DEBUG=true, on first use; catalogctl overrides it with
// SetLevel for its --log-level flag.
//
// Long-running components log through a Named logger:
//
//	log := logging.Named("indexer")
//	log.Info("indexed %d files", n)
//	// [INFO] [indexer] indexed 12 files
package logging
