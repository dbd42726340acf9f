// Package board implements kanban drag-and-drop over the task cache.
//
// A drop is optimistic: the task shows in its new column at once and moves
// back if the server rejects the change.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"taskdeck/backend"
	"taskdeck/internal/cache"
	"taskdeck/internal/fetch"
	"taskdeck/internal/utils"
)

// ColumnID identifies a board column. Real columns use the status id.
type ColumnID int64

// NoStatusColumn holds tasks without a known status. It maps to status 0.
const NoStatusColumn ColumnID = -1

// DefaultFinishedStatus is the status the server assigns to finished tasks.
const DefaultFinishedStatus int64 = 1

// StatusID returns the status written to tasks dropped on this column.
func (c ColumnID) StatusID() int64 {
	if c == NoStatusColumn {
		return 0
	}
	return int64(c)
}

// ColumnFor returns the column for a status id.
func ColumnFor(statusID int64) ColumnID {
	if statusID == 0 {
		return NoStatusColumn
	}
	return ColumnID(statusID)
}

var (
	ErrNoDrag      = errors.New("no drag in progress")
	ErrUnknownTask = errors.New("task not in cache")
)

// Column is one rendered board column.
type Column struct {
	ID    ColumnID
	Name  string
	Tasks []backend.Task
}

// Columns lays top-level tasks out by status. The no-status column comes
// first and collects tasks whose status is unset or not in statuses.
func Columns(statuses []backend.Status, tasks []backend.Task) []Column {
	cols := make([]Column, 0, len(statuses)+1)
	cols = append(cols, Column{ID: NoStatusColumn, Name: "No Status"})
	index := make(map[int64]int, len(statuses))
	for _, s := range statuses {
		if s.ID == 0 {
			continue
		}
		index[s.ID] = len(cols)
		cols = append(cols, Column{ID: ColumnID(s.ID), Name: s.Name})
	}
	for _, t := range tasks {
		if t.IsSubtask() {
			continue
		}
		i, ok := index[t.StatusID]
		if !ok {
			i = 0
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// StatusUpdater is the part of the API the engine calls.
type StatusUpdater interface {
	UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error
	FinishTask(ctx context.Context, taskID int64) error
}

// Journal records the outcome of each confirmed mutation.
type Journal interface {
	Record(ctx context.Context, op string, taskID int64, err error) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithKey sets the cache key the engine mutates. Defaults to fetch.TasksKey().
func WithKey(key string) Option {
	return func(e *Engine) { e.key = key }
}

// WithFinishedStatus sets the status used by Finish.
func WithFinishedStatus(id int64) Option {
	return func(e *Engine) { e.finished = id }
}

// WithErrorSink receives every error surfaced by a failed mutation.
func WithErrorSink(fn func(error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithJournal records mutation outcomes.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// Engine tracks drag state and performs optimistic moves.
type Engine struct {
	cache    *cache.Cache[backend.Task]
	api      StatusUpdater
	key      string
	finished int64
	onError  func(error)
	journal  Journal

	mu       sync.Mutex
	dragging int64
	hasDrag  bool
	hover    ColumnID
	hasHover bool
}

// New creates an engine over the task cache.
func New(c *cache.Cache[backend.Task], api StatusUpdater, opts ...Option) *Engine {
	e := &Engine{
		cache:    c,
		api:      api,
		key:      fetch.TasksKey(),
		finished: DefaultFinishedStatus,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the cache key the engine mutates.
func (e *Engine) Key() string { return e.key }

// BeginDrag starts dragging a task.
func (e *Engine) BeginDrag(taskID int64) error {
	if _, ok := e.cache.Find(e.key, taskID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, taskID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dragging = taskID
	e.hasDrag = true
	e.hasHover = false
	return nil
}

// Hover records the column under the dragged task.
func (e *Engine) Hover(col ColumnID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasDrag {
		return
	}
	e.hover = col
	e.hasHover = true
}

// Cancel abandons the drag.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasDrag = false
	e.hasHover = false
}

// Dragging returns the task being dragged.
func (e *Engine) Dragging() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dragging, e.hasDrag
}

// Hovered returns the current drop target.
func (e *Engine) Hovered() (ColumnID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hover, e.hasDrag && e.hasHover
}

// Move is a drop whose optimistic update is applied (or queued) but whose
// server call has not run yet.
type Move struct {
	engine  *Engine
	TaskID  int64
	From    int64
	To      int64
	handles []*cache.Handle
}

// Noop reports whether the drop landed on the task's own column with nothing
// pending for it.
func (m *Move) Noop() bool { return len(m.handles) == 0 }

// Handle returns the cache handle for the engine's own collection.
func (m *Move) Handle() *cache.Handle {
	if m.Noop() {
		return nil
	}
	return m.handles[0]
}

// StartDrop ends the drag over col and applies the move to the cache.
func (e *Engine) StartDrop(col ColumnID) (*Move, error) {
	e.mu.Lock()
	if !e.hasDrag {
		e.mu.Unlock()
		return nil, ErrNoDrag
	}
	taskID := e.dragging
	e.hasDrag = false
	e.hasHover = false
	e.mu.Unlock()

	task, ok := e.cache.Find(e.key, taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTask, taskID)
	}
	m := &Move{engine: e, TaskID: taskID, From: task.StatusID, To: col.StatusID()}
	// From is speculative while earlier moves are unresolved; a drop back
	// onto it still has to reach the server after them.
	if m.From == m.To && e.cache.Pending(e.key, taskID) == 0 {
		return m, nil
	}
	m.handles = e.apply(taskID, withStatus(taskID, m.To))
	utils.Debugf("board: task %d %d -> %d applied to %d collections", taskID, m.From, m.To, len(m.handles))
	return m, nil
}

// Confirm sends the move to the server once it is applied, then commits it
// or rolls it back.
func (m *Move) Confirm(ctx context.Context) error {
	if m.Noop() {
		return nil
	}
	e := m.engine
	if err := e.wait(ctx, m.handles); err != nil {
		e.rollback(m.handles)
		return e.fail(ctx, "move", m.TaskID, err)
	}
	if err := e.api.UpdateTaskStatus(ctx, m.TaskID, m.To); err != nil {
		e.rollback(m.handles)
		return e.fail(ctx, "move", m.TaskID, err)
	}
	if err := e.commit(m.handles); err != nil {
		return err
	}
	e.record(ctx, "move", m.TaskID, nil)
	return nil
}

// Drop is StartDrop followed by Confirm.
func (e *Engine) Drop(ctx context.Context, col ColumnID) error {
	m, err := e.StartDrop(col)
	if err != nil {
		return err
	}
	return m.Confirm(ctx)
}

// Finish moves a task and its subtasks to the finished status and tells the
// server. Every optimistic change is undone if the call fails.
func (e *Engine) Finish(ctx context.Context, taskID int64) error {
	items, ok := e.cache.Get(e.key)
	if !ok || backend.FindTask(items, taskID) == nil {
		return fmt.Errorf("%w: %d", ErrUnknownTask, taskID)
	}

	ids := []int64{taskID}
	seen := map[int64]bool{taskID: true}
	subtasks := backend.Subtasks(items, taskID)
	if loaded, ok := e.cache.Get(fetch.SubtasksKey(taskID)); ok {
		subtasks = append(subtasks, loaded...)
	}
	for _, st := range subtasks {
		if !seen[st.ID] {
			seen[st.ID] = true
			ids = append(ids, st.ID)
		}
	}

	var handles []*cache.Handle
	for _, id := range ids {
		handles = append(handles, e.apply(id, withStatus(id, e.finished))...)
	}
	if err := e.wait(ctx, handles); err != nil {
		e.rollback(handles)
		return e.fail(ctx, "finish", taskID, err)
	}
	if err := e.api.FinishTask(ctx, taskID); err != nil {
		e.rollback(handles)
		return e.fail(ctx, "finish", taskID, err)
	}
	if err := e.commit(handles); err != nil {
		return err
	}
	e.record(ctx, "finish", taskID, nil)
	return nil
}

// apply writes fn to every cached task collection holding taskID, the
// engine's own key first.
func (e *Engine) apply(taskID int64, fn func([]backend.Task) []backend.Task) []*cache.Handle {
	var handles []*cache.Handle
	if _, ok := e.cache.Find(e.key, taskID); ok {
		handles = append(handles, e.cache.ApplyOptimistic(e.key, taskID, fn))
	}
	for _, key := range e.cache.Keys() {
		if key == e.key {
			continue
		}
		if _, ok := e.cache.Find(key, taskID); ok {
			handles = append(handles, e.cache.ApplyOptimistic(key, taskID, fn))
		}
	}
	return handles
}

func (e *Engine) wait(ctx context.Context, handles []*cache.Handle) error {
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) commit(handles []*cache.Handle) error {
	for _, h := range handles {
		if err := e.cache.Commit(h); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rollback(handles []*cache.Handle) {
	for i := len(handles) - 1; i >= 0; i-- {
		if err := e.cache.Rollback(handles[i]); err != nil && !errors.Is(err, cache.ErrResolved) {
			utils.Warnf("board: rollback %s/%d: %v", handles[i].Key(), handles[i].EntityID(), err)
		}
	}
}

func (e *Engine) fail(ctx context.Context, op string, taskID int64, err error) error {
	err = fmt.Errorf("%s task %d: %w", op, taskID, err)
	utils.Debugf("board: %v", err)
	e.record(ctx, op, taskID, err)
	if e.onError != nil {
		e.onError(err)
	}
	return err
}

func (e *Engine) record(ctx context.Context, op string, taskID int64, err error) {
	if e.journal == nil {
		return
	}
	if jerr := e.journal.Record(context.WithoutCancel(ctx), op, taskID, err); jerr != nil {
		utils.Debugf("board: journal: %v", jerr)
	}
}

func withStatus(taskID, statusID int64) func([]backend.Task) []backend.Task {
	return func(tasks []backend.Task) []backend.Task {
		for i := range tasks {
			if tasks[i].ID == taskID {
				tasks[i].StatusID = statusID
			}
		}
		return tasks
	}
}
