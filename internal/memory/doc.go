// Package memory configures the Go runtime memory limit for containers and
// applies backpressure to scheduled processing jobs when the heap nears it.
//
// # Container limits
//
// Go does not read cgroup memory limits. ConfigureFromEnv sets GOMEMLIMIT
// from MEMORY_LIMIT, usually injected with the Kubernetes Downward API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//	  - name: MEMORY_RATIO
//	    value: "0.80"
//
// MEMORY_RATIO (default 0.85) is the share given to the Go heap. The rest is
// left for libvips and the image decoders, which allocate outside the Go
// heap. Lower it when thumbnails are generated with libvips at high
// concurrency. An explicit GOMEMLIMIT always wins.
//
// # Backpressure
//
// [Monitor] samples heap usage and pauses once it crosses the critical mark,
// resuming when usage drops below the high-water mark. The job queue waits on
// it before starting each job:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	queue.SetGate(monitor)
//
// Without a memory limit the monitor never pauses.
package memory
