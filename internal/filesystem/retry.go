package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"media-catalog/internal/logging"
)

// unknownVolume labels paths outside every configured volume.
const unknownVolume = "unknown"

// Volumes labels paths by the configured directory they live under, using
// the longest matching prefix.
type Volumes struct {
	mounts []mount
}

type mount struct {
	prefix string // absolute, with a trailing separator
	label  string
}

// NewVolumes builds a Volumes from label -> directory. Empty directories are
// ignored.
func NewVolumes(dirs map[string]string) *Volumes {
	v := &Volumes{}
	for label, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		v.mounts = append(v.mounts, mount{prefix: strings.TrimSuffix(abs, "/") + "/", label: label})
	}
	sort.Slice(v.mounts, func(i, j int) bool { return len(v.mounts[i].prefix) > len(v.mounts[j].prefix) })
	return v
}

// Label returns the label of the volume holding path, or "unknown".
func (v *Volumes) Label(path string) string {
	if v == nil {
		return unknownVolume
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return unknownVolume
	}
	abs += "/"
	for _, m := range v.mounts {
		if strings.HasPrefix(abs, m.prefix) {
			return m.label
		}
	}
	return unknownVolume
}

var defaultVolumes atomic.Pointer[Volumes]

// SetVolumes installs the volumes used to label metrics when a Retry has
// none of its own.
func SetVolumes(v *Volumes) {
	defaultVolumes.Store(v)
}

// Retry retries stale NFS file handles with exponential backoff.
type Retry struct {
	// Retries is the number of attempts after the first.
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Volumes overrides the package volumes for metric labels.
	Volumes *Volumes
}

// DefaultRetry waits 50ms, 100ms and 200ms before giving up.
func DefaultRetry() Retry {
	return Retry{
		Retries:    3,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: 500 * time.Millisecond,
	}
}

// Stat is os.Stat under DefaultRetry.
func Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return DefaultRetry().Stat(ctx, path)
}

// Open is os.Open under DefaultRetry.
func Open(ctx context.Context, path string) (*os.File, error) {
	return DefaultRetry().Open(ctx, path)
}

// Stat calls os.Stat, retrying ESTALE.
func (r Retry) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return retry(ctx, r, "stat", path, func() (os.FileInfo, error) { return os.Stat(path) })
}

// Open calls os.Open, retrying ESTALE.
func (r Retry) Open(ctx context.Context, path string) (*os.File, error) {
	return retry(ctx, r, "open", path, func() (*os.File, error) { return os.Open(path) })
}

// IsStale reports whether err is a stale NFS file handle.
func IsStale(err error) bool {
	return err != nil && errors.Is(err, syscall.ESTALE)
}

func (r Retry) volume(path string) string {
	if r.Volumes != nil {
		return r.Volumes.Label(path)
	}
	return defaultVolumes.Load().Label(path)
}

// retry runs fn until it returns anything but ESTALE, the retries are spent,
// or ctx is done.
func retry[T any](ctx context.Context, r Retry, op, path string, fn func() (T, error)) (T, error) {
	start := time.Now()
	volume := r.volume(path)
	obs := observe()
	wait := r.Backoff

	record := func(err error) {
		if obs != nil {
			obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
		}
	}
	event := func(ev RetryEvent) {
		if obs != nil {
			obs.ObserveRetry(volume, op, ev)
		}
	}

	for attempt := 0; ; attempt++ {
		result, err := fn()
		switch {
		case err == nil:
			if attempt > 0 {
				logging.Info("%s of %s recovered after %d stale handle retries", op, path, attempt)
				event(RetryRecovered)
			}
			record(nil)
			return result, nil
		case !IsStale(err):
			record(err)
			return result, err
		}

		event(RetryStale)
		if attempt >= r.Retries {
			logging.Warn("%s of %s still stale after %d retries: %v", op, path, r.Retries, err)
			event(RetryExhausted)
			record(err)
			return result, err
		}

		logging.Debug("Stale handle on %s of %s, retry %d/%d in %v", op, path, attempt+1, r.Retries, wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			record(ctx.Err())
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, r.MaxBackoff)
	}
}
