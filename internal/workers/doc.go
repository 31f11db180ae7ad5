// Package workers sizes goroutine pools and runs them.
//
// Pool sizes follow GOMAXPROCS rather than runtime.NumCPU, so a catalog pod
// limited to 2 CPUs on a 64 core node starts a handful of workers, not 128:
//
//	idx.SetWorkers(workers.ForIO(0))                          // 2 per CPU
//	q := jobs.NewQueue(runner.RunDetached, workers.ForIO(4))  // at most 4
//
// PROCESS_WORKERS overrides the computed size everywhere; a limit still caps
// it.
//
// Each fans a channel out to a fixed pool. The indexer uses it to stat the
// paths its directory walk produces:
//
//	paths := make(chan string)
//	go walk(ctx, root, paths) // closes paths
//	workers.Each(ctx, workers.ForIO(16), paths, func(ctx context.Context, p string) {
//		stat(ctx, p)
//	})
package workers
