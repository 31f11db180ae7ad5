package progress

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		processed, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{7, 5, 100},
		{999, 1000, 99},
	}
	for _, tt := range tests {
		if got := Percent(tt.processed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestCountersSumInvariant(t *testing.T) {
	t.Parallel()

	start := time.Now()
	c := NewCounters(start, 4)
	outcomes := []Outcome{OutcomeSuccess, OutcomeFailure, OutcomeSkipped, OutcomeSuccess, OutcomeSkipped, OutcomeSuccess}

	prev := Snapshot{}
	for i, o := range outcomes {
		c.Record(o)
		s := c.Snapshot(start.Add(time.Duration(i+1) * time.Second))
		if s.Processed != s.Success+s.Failure+s.Skipped {
			t.Fatalf("step %d: processed %d != %d+%d+%d", i, s.Processed, s.Success, s.Failure, s.Skipped)
		}
		if s.Processed < prev.Processed || s.Success < prev.Success || s.Failure < prev.Failure || s.Skipped < prev.Skipped {
			t.Fatalf("step %d: counters decreased: %+v -> %+v", i, prev, s)
		}
		if s.Total < s.Processed {
			t.Fatalf("step %d: total %d below processed %d", i, s.Total, s.Processed)
		}
		prev = s
	}

	if prev.Success != 3 || prev.Failure != 1 || prev.Skipped != 2 {
		t.Errorf("final = %+v", prev)
	}

	c.SetTotal(1)
	if s := c.Snapshot(start); s.Total != 6 {
		t.Errorf("SetTotal shrank total below processed: %d", s.Total)
	}
}

func TestSnapshotRateAndETA(t *testing.T) {
	t.Parallel()

	start := time.Now()
	c := NewCounters(start, 100)
	for i := 0; i < 20; i++ {
		c.Record(OutcomeSuccess)
	}

	s := c.Snapshot(start.Add(10 * time.Second))
	if s.Rate != 2 {
		t.Errorf("Rate = %v, want 2", s.Rate)
	}
	if s.ETA != 40 {
		t.Errorf("ETA = %v, want 40", s.ETA)
	}

	if s := NewCounters(start, 10).Snapshot(start); s.Rate != 0 || s.ETA != 0 {
		t.Errorf("empty snapshot = %+v, want zero rate and ETA", s)
	}
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	ev := Event{
		Status:    StatusProcessing,
		Operation: "exif",
		Token:     "t1",
		Metadata:  &ItemMetadata{ItemID: 7, FileName: "a.jpg", FileType: "image", Method: "fast"},
	}
	Snapshot{Total: 4, Processed: 1, Success: 1}.Apply(&ev)

	if ev.Timestamp == 0 {
		t.Error("Apply did not set the timestamp")
	}
	if ev.PercentComplete != 25 {
		t.Errorf("PercentComplete = %d, want 25", ev.PercentComplete)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"status":"processing"`, `"totalCount":4`, `"percentComplete":25`, `"itemId":7`, `"method":"fast"`, `"token":"t1"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON %s missing %s", data, key)
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusComplete, StatusError, StatusAborted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusStarted, StatusProcessing, StatusBatchComplete} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
