package memory

import (
	"context"
	"errors"
	"runtime/debug"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Tests below touch the process-wide memory limit and environment, so they
// don't run in parallel.

func restoreLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		ratio      string
		wantSource string
		wantLimit  int64
	}{
		{"unset", "", "", "none", 0},
		{"invalid limit", "lots", "", "none", 0},
		{"default ratio", "1000000000", "", "MEMORY_LIMIT", 850000000},
		{"custom ratio", "1000000000", "0.5", "MEMORY_LIMIT", 500000000},
		{"ratio out of range", "1000000000", "1.5", "MEMORY_LIMIT", 850000000},
		{"unparseable ratio", "1000000000", "half", "MEMORY_LIMIT", 850000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			got := ConfigureFromEnv()
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if got.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", got.GoMemLimit, tt.wantLimit)
			}
			if tt.wantLimit > 0 {
				if applied := debug.SetMemoryLimit(-1); applied != tt.wantLimit {
					t.Errorf("runtime limit = %d, want %d", applied, tt.wantLimit)
				}
			}
		})
	}
}

func TestConfigureFromEnvRespectsGOMEMLIMIT(t *testing.T) {
	restoreLimit(t)
	t.Setenv("GOMEMLIMIT", "256MiB")
	t.Setenv("MEMORY_LIMIT", "1000000000")

	got := ConfigureFromEnv()
	if got.Source != "GOMEMLIMIT" {
		t.Errorf("Source = %q, want GOMEMLIMIT", got.Source)
	}
	if got.ContainerLimit != 0 {
		t.Errorf("ContainerLimit = %d, want 0 when GOMEMLIMIT is set", got.ContainerLimit)
	}
}

func newTestMonitor(limit int64, alloc *uint64) *Monitor {
	m := NewMonitor(Config{
		LimitBytes:        limit,
		HighWaterMark:     0.5,
		CriticalWaterMark: 0.8,
		CheckInterval:     time.Hour,
	})
	m.readAlloc = func() uint64 { return *alloc }
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	alloc := uint64(100)
	m := newTestMonitor(1000, &alloc)
	defer m.Stop()

	m.check()
	if m.IsPaused() {
		t.Fatal("paused at 10% usage")
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() = %v while not paused", err)
	}

	alloc = 900
	m.check()
	if !m.IsPaused() {
		t.Fatal("not paused at 90% usage")
	}

	released := make(chan error, 1)
	go func() { released <- m.Wait(context.Background()) }()

	// Between the marks the monitor stays paused.
	alloc = 600
	m.check()
	select {
	case err := <-released:
		t.Fatalf("Wait returned %v at 60%% usage", err)
	case <-time.After(20 * time.Millisecond):
	}

	alloc = 400
	m.check()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("Wait() = %v after recovery", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after recovery")
	}

	current, limit, usage := m.Stats()
	if current != 400 || limit != 1000 || usage != 0.4 {
		t.Errorf("Stats() = %d, %d, %v", current, limit, usage)
	}
}

func TestMonitorWaitHonoursContext(t *testing.T) {
	alloc := uint64(950)
	m := newTestMonitor(1000, &alloc)
	defer m.Stop()
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	alloc := uint64(950)
	m := newTestMonitor(1000, &alloc)
	m.check()

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()
	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() = %v after Stop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the waiter")
	}
}

func TestMonitorWithoutLimitNeverPauses(t *testing.T) {
	restoreLimit(t)
	debug.SetMemoryLimit(1<<63 - 1)

	alloc := uint64(1 << 40)
	m := newTestMonitor(0, &alloc)
	defer m.Stop()
	m.check()

	if m.IsPaused() {
		t.Error("paused without a limit")
	}
}
