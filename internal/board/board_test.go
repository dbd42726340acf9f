package board

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"taskdeck/backend"
	"taskdeck/internal/cache"
	"taskdeck/internal/fetch"
)

type apiCall struct {
	Op       string
	TaskID   int64
	StatusID int64
}

// fakeAPI records calls and fails when err is set.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	err   error
	block chan struct{}
}

func (f *fakeAPI) UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{"status", taskID, statusID})
	return f.err
}

func (f *fakeAPI) FinishTask(ctx context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{"finish", taskID, 0})
	return f.err
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type journalEntry struct {
	Op     string
	TaskID int64
	Failed bool
}

type memJournal struct {
	entries []journalEntry
}

func (j *memJournal) Record(ctx context.Context, op string, taskID int64, err error) error {
	j.entries = append(j.entries, journalEntry{op, taskID, err != nil})
	return nil
}

func seeded() *cache.Cache[backend.Task] {
	c := cache.New[backend.Task]()
	c.Replace(fetch.TasksKey(), []backend.Task{
		{ID: 1, Name: "write report", StatusID: 2},
		{ID: 2, Name: "review", StatusID: 3},
		{ID: 3, Name: "outline", StatusID: 2, ParentTaskID: 1},
		{ID: 4, Name: "sources", StatusID: 3, ParentTaskID: 1},
	})
	return c
}

func statusOf(t *testing.T, c *cache.Cache[backend.Task], id int64) int64 {
	t.Helper()
	task, ok := c.Find(fetch.TasksKey(), id)
	if !ok {
		t.Fatalf("task %d missing from cache", id)
	}
	return task.StatusID
}

// =============================================================================
// Columns
// =============================================================================

func TestColumnsGroupsByStatus(t *testing.T) {
	statuses := []backend.Status{{ID: 1, Name: "Done"}, {ID: 2, Name: "Todo"}}
	tasks := []backend.Task{
		{ID: 1, StatusID: 2},
		{ID: 2, StatusID: 9},
		{ID: 3, StatusID: 0},
		{ID: 4, StatusID: 1},
		{ID: 5, StatusID: 2, ParentTaskID: 1},
	}
	cols := Columns(statuses, tasks)

	if len(cols) != 3 {
		t.Fatalf("got %d columns, want 3", len(cols))
	}
	if cols[0].ID != NoStatusColumn {
		t.Errorf("first column = %d, want no-status", cols[0].ID)
	}
	ids := func(c Column) []int64 {
		var out []int64
		for _, t := range c.Tasks {
			out = append(out, t.ID)
		}
		return out
	}
	if got := ids(cols[0]); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Errorf("no-status tasks = %v, want [2 3]", got)
	}
	if got := ids(cols[1]); !reflect.DeepEqual(got, []int64{4}) {
		t.Errorf("Done tasks = %v", got)
	}
	if got := ids(cols[2]); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("Todo tasks = %v, subtasks must be excluded", got)
	}
}

func TestColumnStatusMapping(t *testing.T) {
	if NoStatusColumn.StatusID() != 0 {
		t.Errorf("no-status column should map to status 0")
	}
	if ColumnFor(0) != NoStatusColumn || ColumnFor(4) != 4 {
		t.Errorf("ColumnFor mapping wrong")
	}
}

// =============================================================================
// Drag and drop
// =============================================================================

func TestDropSuccessCommits(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	j := &memJournal{}
	e := New(c, api, WithJournal(j))

	if err := e.BeginDrag(1); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	e.Hover(3)
	if col, ok := e.Hovered(); !ok || col != 3 {
		t.Errorf("Hovered = %d %v", col, ok)
	}
	if len(api.Calls()) != 0 {
		t.Fatalf("hover must not call the server")
	}

	if err := e.Drop(context.Background(), 3); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if got := statusOf(t, c, 1); got != 3 {
		t.Errorf("status = %d, want 3", got)
	}
	want := []apiCall{{"status", 1, 3}}
	if !reflect.DeepEqual(api.Calls(), want) {
		t.Errorf("calls = %v, want %v", api.Calls(), want)
	}
	if c.Pending(fetch.TasksKey(), 1) != 0 {
		t.Errorf("mutation still pending after commit")
	}
	if len(j.entries) != 1 || j.entries[0].Failed {
		t.Errorf("journal = %+v", j.entries)
	}
}

func TestDropFailureRollsBackAndSurfacesOnce(t *testing.T) {
	c := seeded()
	before, _ := c.Get(fetch.TasksKey())
	boom := errors.New("server error")
	api := &fakeAPI{err: boom}

	var surfaced []error
	e := New(c, api, WithErrorSink(func(err error) { surfaced = append(surfaced, err) }))

	_ = e.BeginDrag(1)
	err := e.Drop(context.Background(), 3)
	if !errors.Is(err, boom) {
		t.Fatalf("Drop err = %v, want server error", err)
	}
	if len(surfaced) != 1 || !errors.Is(surfaced[0], boom) {
		t.Errorf("surfaced = %v, want exactly one error", surfaced)
	}
	after, _ := c.Get(fetch.TasksKey())
	if !reflect.DeepEqual(before, after) {
		t.Errorf("cache not restored:\nbefore=%v\nafter=%v", before, after)
	}
}

func TestOptimisticStateVisibleBeforeServerAnswers(t *testing.T) {
	c := seeded()
	api := &fakeAPI{block: make(chan struct{})}
	e := New(c, api)

	_ = e.BeginDrag(2)
	m, err := e.StartDrop(NoStatusColumn)
	if err != nil {
		t.Fatalf("StartDrop: %v", err)
	}
	if got := statusOf(t, c, 2); got != 0 {
		t.Errorf("status = %d, want optimistic 0", got)
	}

	done := make(chan error, 1)
	go func() { done <- m.Confirm(context.Background()) }()
	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := statusOf(t, c, 2); got != 0 {
		t.Errorf("status = %d after commit, want 0", got)
	}
}

func TestSameColumnDropIsNoop(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	var events int
	c.Subscribe(fetch.TasksKey(), func(cache.Event) { events++ })
	e := New(c, api)

	_ = e.BeginDrag(1)
	if err := e.Drop(context.Background(), 2); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if len(api.Calls()) != 0 {
		t.Errorf("same-column drop called the server: %v", api.Calls())
	}
	if events != 0 {
		t.Errorf("same-column drop mutated the cache (%d events)", events)
	}
}

func TestDropWithoutDrag(t *testing.T) {
	e := New(seeded(), &fakeAPI{})
	if err := e.Drop(context.Background(), 1); !errors.Is(err, ErrNoDrag) {
		t.Errorf("err = %v, want ErrNoDrag", err)
	}
}

func TestCancelResetsDrag(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	e := New(c, api)

	_ = e.BeginDrag(1)
	e.Hover(3)
	e.Cancel()

	if _, ok := e.Dragging(); ok {
		t.Errorf("drag still active after cancel")
	}
	if err := e.Drop(context.Background(), 3); !errors.Is(err, ErrNoDrag) {
		t.Errorf("drop after cancel err = %v, want ErrNoDrag", err)
	}
	if len(api.Calls()) != 0 || statusOf(t, c, 1) != 2 {
		t.Errorf("cancel had side effects")
	}
}

func TestBeginDragUnknownTask(t *testing.T) {
	e := New(seeded(), &fakeAPI{})
	if err := e.BeginDrag(42); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}
}

func TestQueuedMovesConfirmInOrder(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	e := New(c, api)

	_ = e.BeginDrag(1)
	first, _ := e.StartDrop(3)
	_ = e.BeginDrag(1)
	second, _ := e.StartDrop(1)

	secondDone := make(chan error, 1)
	go func() { secondDone <- second.Confirm(context.Background()) }()

	select {
	case <-secondDone:
		t.Fatal("second move confirmed before the first resolved")
	case <-time.After(20 * time.Millisecond):
	}

	if err := first.Confirm(context.Background()); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	want := []apiCall{{"status", 1, 3}, {"status", 1, 1}}
	if !reflect.DeepEqual(api.Calls(), want) {
		t.Errorf("calls = %v, want %v", api.Calls(), want)
	}
	if got := statusOf(t, c, 1); got != 1 {
		t.Errorf("final status = %d, want 1", got)
	}
}

func TestDropBackWhilePendingReachesServer(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	e := New(c, api)

	_ = e.BeginDrag(1)
	first, _ := e.StartDrop(3)
	_ = e.BeginDrag(1)
	back, err := e.StartDrop(3)
	if err != nil {
		t.Fatalf("StartDrop: %v", err)
	}
	if back.Noop() {
		t.Fatal("drop onto a speculative column was treated as a no-op")
	}

	if err := first.Confirm(context.Background()); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	if err := back.Confirm(context.Background()); err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	want := []apiCall{{"status", 1, 3}, {"status", 1, 3}}
	if !reflect.DeepEqual(api.Calls(), want) {
		t.Errorf("calls = %v, want %v", api.Calls(), want)
	}
}

func TestDropUpdatesEveryCollectionHoldingTask(t *testing.T) {
	c := seeded()
	group := fetch.GroupTasksKey(9)
	c.Replace(group, []backend.Task{{ID: 2, Name: "review", StatusID: 3, GroupID: 9}})
	api := &fakeAPI{block: make(chan struct{})}
	e := New(c, api)

	_ = e.BeginDrag(2)
	m, _ := e.StartDrop(1)
	if task, _ := c.Find(group, 2); task.StatusID != 1 {
		t.Errorf("group status = %d before confirm, want optimistic 1", task.StatusID)
	}
	if len(m.handles) != 2 {
		t.Errorf("move holds %d handles, want one per collection", len(m.handles))
	}

	api.err = errors.New("offline")
	close(api.block)
	if err := m.Confirm(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if task, _ := c.Find(group, 2); task.StatusID != 3 {
		t.Errorf("group status = %d after rollback, want 3", task.StatusID)
	}
	if got := statusOf(t, c, 2); got != 3 {
		t.Errorf("board status = %d after rollback, want 3", got)
	}
}

// =============================================================================
// Finish
// =============================================================================

func TestFinishMovesSubtasks(t *testing.T) {
	c := seeded()
	api := &fakeAPI{}
	e := New(c, api, WithFinishedStatus(1))

	if err := e.Finish(context.Background(), 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	for _, id := range []int64{1, 3, 4} {
		if got := statusOf(t, c, id); got != 1 {
			t.Errorf("task %d status = %d, want 1", id, got)
		}
	}
	if got := statusOf(t, c, 2); got != 3 {
		t.Errorf("unrelated task changed: %d", got)
	}
	if want := []apiCall{{"finish", 1, 0}}; !reflect.DeepEqual(api.Calls(), want) {
		t.Errorf("calls = %v", api.Calls())
	}
}

func TestFinishUpdatesSubtaskCollection(t *testing.T) {
	c := seeded()
	subs := fetch.SubtasksKey(1)
	c.Replace(subs, []backend.Task{
		{ID: 3, Name: "outline", StatusID: 2, ParentTaskID: 1},
		{ID: 4, Name: "sources", StatusID: 3, ParentTaskID: 1},
		{ID: 5, Name: "appendix", StatusID: 2, ParentTaskID: 1},
	})
	e := New(c, &fakeAPI{}, WithFinishedStatus(1))

	if err := e.Finish(context.Background(), 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	items, _ := c.Get(subs)
	for _, st := range items {
		if st.StatusID != 1 {
			t.Errorf("subtask %d status = %d, want 1", st.ID, st.StatusID)
		}
	}
}

func TestFinishFailureRollsBackAll(t *testing.T) {
	c := seeded()
	before, _ := c.Get(fetch.TasksKey())
	e := New(c, &fakeAPI{err: errors.New("offline")})

	if err := e.Finish(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	after, _ := c.Get(fetch.TasksKey())
	if !reflect.DeepEqual(before, after) {
		t.Errorf("finish rollback incomplete:\nbefore=%v\nafter=%v", before, after)
	}
}
