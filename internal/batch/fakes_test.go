package batch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/progress"
)

type fakeState struct {
	status  database.Status
	message string
	at      time.Time
}

// fakeStore is an in-memory finder, ledger and resolver that applies the
// same eligibility rules as the SQLite finder.
type fakeStore struct {
	mu       sync.Mutex
	items    []database.MediaItem
	types    map[string]database.FileType
	states   map[int64]fakeState
	marks    map[int64][]database.Status
	fetches  int
	fetchErr error
	// sticky makes FindUnprocessed ignore the ledger, simulating a finder
	// that keeps returning the same rows.
	sticky bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		types: map[string]database.FileType{
			"jpg": {ID: 1, Extension: "jpg", Category: "image"},
			"cr2": {ID: 2, Extension: "cr2", Category: "raw_image"},
			"mp4": {ID: 3, Extension: "mp4", Category: "video"},
			"xmp": {ID: 4, Extension: "xmp", Category: "other", Ignore: true},
		},
		states: make(map[int64]fakeState),
		marks:  make(map[int64][]database.Status),
	}
}

func (s *fakeStore) add(name, ext string, size int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.items) + 1)
	s.items = append(s.items, database.MediaItem{ID: id, FileName: name, Extension: ext, SizeBytes: size})
	return id
}

func (s *fakeStore) FindUnprocessed(_ context.Context, q database.FinderQuery) (*database.UnprocessedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	page := &database.UnprocessedPage{}
	for _, item := range s.items {
		ft, ok := s.types[item.Extension]
		if ok && ft.Ignore {
			continue
		}
		if st, has := s.states[item.ID]; has && !s.sticky {
			done := st.status == database.StatusSuccess || st.status == database.StatusSkipped ||
				(st.status == database.StatusError && !q.RetryFailed)
			if done || !st.at.Before(q.Since) {
				continue
			}
		}
		if len(q.Categories) > 0 && ok && !slices.Contains(q.Categories, ft.Category) {
			continue
		}
		page.TotalAvailable++
		if len(page.Items) < q.Limit {
			page.Items = append(page.Items, item)
		}
	}
	return page, nil
}

func (s *fakeStore) mark(id int64, st database.Status, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = fakeState{status: st, message: msg, at: time.Now()}
	s.marks[id] = append(s.marks[id], st)
	return nil
}

func (s *fakeStore) MarkStarted(_ context.Context, id int64, _ database.OperationType) error {
	return s.mark(id, database.StatusProcessing, "")
}

func (s *fakeStore) MarkSuccess(_ context.Context, id int64, _ database.OperationType, msg string, _ database.Metadata) error {
	return s.mark(id, database.StatusSuccess, msg)
}

func (s *fakeStore) MarkError(_ context.Context, id int64, _ database.OperationType, msg string, _ database.Metadata) error {
	return s.mark(id, database.StatusError, msg)
}

func (s *fakeStore) MarkSkipped(_ context.Context, id int64, _ database.OperationType, msg string, _ database.Metadata) error {
	return s.mark(id, database.StatusSkipped, msg)
}

func (s *fakeStore) MarkAborted(_ context.Context, id int64, _ database.OperationType, msg string) error {
	return s.mark(id, database.StatusAborted, msg)
}

func (s *fakeStore) Resolve(_ context.Context, item *database.MediaItem) (database.FileType, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft, ok := s.types[item.Extension]
	return ft, ok, nil
}

func (s *fakeStore) state(id int64) (fakeState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

// seed writes a ledger row dated before any run.
func (s *fakeStore) seed(id int64, st database.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = fakeState{status: st, at: time.Now().Add(-time.Hour)}
}

type fakeOp struct {
	mu         sync.Mutex
	typ        database.OperationType
	categories []string
	calls      []int64
	process    func(item *database.MediaItem) (Outcome, error)
}

func (o *fakeOp) Type() database.OperationType {
	if o.typ == "" {
		return database.OpExif
	}
	return o.typ
}

func (o *fakeOp) Categories() []string { return o.categories }

func (o *fakeOp) Process(_ context.Context, item *database.MediaItem) (Outcome, error) {
	o.mu.Lock()
	o.calls = append(o.calls, item.ID)
	o.mu.Unlock()
	if o.process != nil {
		return o.process(item)
	}
	return Success("ok", nil), nil
}

func (o *fakeOp) called() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.calls)
}

type fakeSignal struct {
	token   string
	aborted atomic.Bool
	polls   atomic.Int32
}

func (s *fakeSignal) Token() string { return s.token }

func (s *fakeSignal) Aborted() bool {
	s.polls.Add(1)
	return s.aborted.Load()
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	err    error
}

func (r *recorder) Emit(_ context.Context, ev progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) last() progress.Event {
	evs := r.all()
	if len(evs) == 0 {
		return progress.Event{}
	}
	return evs[len(evs)-1]
}

func (r *recorder) count(st progress.Status) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Status == st {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
