// Package filesystem opens and stats catalog files, retrying stale NFS file
// handles.
//
// Media libraries are often NFS mounts. The indexer and every per-item
// operation go through Stat and Open here, so a transient ESTALE is retried
// instead of being recorded as an item failure:
//
//	f, err := filesystem.Open(ctx, item.FilePath)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
// Only ESTALE is retried. The wait doubles from Backoff up to MaxBackoff and
// stops early when ctx is done.
//
// Operations are labelled by volume for metrics. main installs the media,
// cache and database directories with SetVolumes and the Prometheus
// observer with SetObserver; without an observer nothing is recorded.
package filesystem
