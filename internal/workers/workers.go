package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
)

// EnvOverride pins every pool size when set to a positive integer.
const EnvOverride = "PROCESS_WORKERS"

// ioMultiplier is how many workers ForIO runs per usable CPU. File stats and
// reads spend most of their time blocked, more so on NFS.
const ioMultiplier = 2.0

// Count returns multiplier workers per usable CPU, at least one and at most
// limit when limit is positive. Usable CPUs come from GOMAXPROCS, which
// follows the container CPU limit; runtime.NumCPU reports the host.
func Count(multiplier float64, limit int) int {
	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if v, err := strconv.Atoi(os.Getenv(EnvOverride)); err == nil && v > 0 {
		n = v
	}
	n = max(n, 1)
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// ForIO sizes a pool for filesystem bound work: indexing and batch jobs.
func ForIO(limit int) int {
	return Count(ioMultiplier, limit)
}

// Each runs fn over every value received from in on n goroutines. It returns
// once in is closed and drained, or once ctx is done and the calls in flight
// have returned; values still queued at cancellation are dropped.
func Each[T any](ctx context.Context, n int, in <-chan T, fn func(context.Context, T)) {
	var wg sync.WaitGroup
	for range max(n, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case v, ok := <-in:
					if !ok {
						return
					}
					fn(ctx, v)
				}
			}
		}()
	}
	wg.Wait()
}
