package app

import (
	"context"
	"errors"
	"fmt"

	"taskdeck/backend"
	"taskdeck/internal/cache"
	"taskdeck/internal/fetch"
	"taskdeck/internal/utils"
)

// ErrUnknownTask is returned when an edit names a task that is not cached.
var ErrUnknownTask = errors.New("task not loaded")

// Edit is an optimistic change already visible in the cache whose server
// call has not run yet.
type Edit struct {
	app     *App
	op      string
	TaskID  int64
	handles []*cache.Handle
	send    func(ctx context.Context) error
}

// Confirm waits for the change to apply, sends it and commits it. Any
// failure undoes every optimistic write of the edit.
func (e *Edit) Confirm(ctx context.Context) error {
	rollback := func() {
		for i := len(e.handles) - 1; i >= 0; i-- {
			if err := e.app.Tasks.Cache().Rollback(e.handles[i]); err != nil && !errors.Is(err, cache.ErrResolved) {
				utils.Warnf("app: rollback %s %d: %v", e.op, e.TaskID, err)
			}
		}
	}
	for _, h := range e.handles {
		if err := h.Wait(ctx); err != nil {
			rollback()
			return e.app.fail(ctx, e.op, e.TaskID, err)
		}
	}
	if err := e.send(ctx); err != nil {
		rollback()
		return e.app.fail(ctx, e.op, e.TaskID, err)
	}
	for _, h := range e.handles {
		if err := e.app.Tasks.Cache().Commit(h); err != nil {
			return err
		}
	}
	e.app.record(ctx, e.op, e.TaskID, nil)
	return nil
}

// refs gathers cached reference data for validation.
func (a *App) refs() utils.TaskRefs {
	tasks, _ := a.Tasks.Cache().Get(fetch.TasksKey())
	statuses, _ := a.Statuses.Cache().Get(fetch.StatusesKey())
	priorities, _ := a.Priorities.Cache().Get(fetch.PrioritiesKey())
	return utils.TaskRefs{Tasks: tasks, Statuses: statuses, Priorities: priorities}
}

// StartUpdate validates task, replaces the cached copy with it and returns
// the pending edit. The task's subtask collection is updated too when cached.
func (a *App) StartUpdate(task backend.Task) (*Edit, error) {
	name, err := utils.ValidateTaskInput(utils.TaskInput{
		Name:       task.Name,
		StartTime:  task.StartTime,
		EndTime:    task.EndTime,
		StatusID:   task.StatusID,
		PriorityID: task.PriorityID,
	}, a.refs())
	if err != nil {
		return nil, err
	}
	task.Name = name

	c := a.Tasks.Cache()
	keys := a.keysHolding(task.ID)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTask, task.ID)
	}
	edit := &Edit{app: a, op: "update", TaskID: task.ID}
	for _, key := range keys {
		edit.handles = append(edit.handles, c.ApplyOptimistic(key, task.ID, func(items []backend.Task) []backend.Task {
			for i := range items {
				if items[i].ID == task.ID {
					items[i] = task
				}
			}
			return items
		}))
	}
	edit.send = func(ctx context.Context) error { return a.API.UpdateTask(ctx, task) }
	return edit, nil
}

// StartDelete removes a task and its subtasks from the cache and returns the
// pending edit.
func (a *App) StartDelete(taskID int64) (*Edit, error) {
	c := a.Tasks.Cache()
	keys := a.keysHolding(taskID)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTask, taskID)
	}
	// The subtask collection never holds the parent itself, so its members
	// are gathered by id rather than through keysHolding(taskID).
	ids := []int64{taskID}
	seen := map[int64]bool{taskID: true}
	for _, key := range append(keys, fetch.SubtasksKey(taskID)) {
		items, _ := c.Get(key)
		for _, st := range backend.Subtasks(items, taskID) {
			if !seen[st.ID] {
				seen[st.ID] = true
				ids = append(ids, st.ID)
			}
		}
	}
	edit := &Edit{app: a, op: "delete", TaskID: taskID}
	for _, id := range ids {
		for _, key := range a.keysHolding(id) {
			edit.handles = append(edit.handles, c.ApplyOptimistic(key, id, without(id)))
		}
	}
	edit.send = func(ctx context.Context) error { return a.API.DeleteTask(ctx, taskID) }
	return edit, nil
}

// Rename is StartUpdate with a new name, confirmed immediately.
func (a *App) Rename(ctx context.Context, taskID int64, name string) error {
	t, ok := a.Tasks.Cache().Find(fetch.TasksKey(), taskID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, taskID)
	}
	t.Name = name
	edit, err := a.StartUpdate(t)
	if err != nil {
		return err
	}
	return edit.Confirm(ctx)
}

// Delete is StartDelete confirmed immediately.
func (a *App) Delete(ctx context.Context, taskID int64) error {
	edit, err := a.StartDelete(taskID)
	if err != nil {
		return err
	}
	return edit.Confirm(ctx)
}

// CreateTask validates and creates a top-level task, then invalidates the
// task collections so the new task arrives with the next fetch.
func (a *App) CreateTask(ctx context.Context, in backend.NewTask) error {
	name, err := utils.ValidateTaskInput(utils.TaskInput{
		Name:       in.Name,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		StatusID:   in.StatusID,
		PriorityID: in.PriorityID,
	}, a.refs())
	if err != nil {
		return err
	}
	in.Name = name
	if err := a.API.CreateTask(ctx, in); err != nil {
		return a.fail(ctx, "create", 0, err)
	}
	a.record(ctx, "create", 0, nil)
	a.InvalidateTasks()
	return nil
}

// CreateSubtask validates and creates a subtask under in.ParentTaskID.
func (a *App) CreateSubtask(ctx context.Context, in backend.NewSubtask) error {
	if in.ParentTaskID == 0 {
		return errors.New("subtask needs a parent task")
	}
	name, err := utils.ValidateTaskInput(utils.TaskInput{
		Name:       in.Name,
		ParentID:   in.ParentTaskID,
		StatusID:   in.StatusID,
		PriorityID: in.PriorityID,
	}, a.refs())
	if err != nil {
		return err
	}
	in.Name = name
	if err := a.API.CreateSubtask(ctx, in); err != nil {
		return a.fail(ctx, "create_subtask", in.ParentTaskID, err)
	}
	a.record(ctx, "create_subtask", in.ParentTaskID, nil)
	a.InvalidateTasks()
	return nil
}

// keysHolding lists the cached task collections that contain taskID.
func (a *App) keysHolding(taskID int64) []string {
	c := a.Tasks.Cache()
	var keys []string
	for _, key := range c.Keys() {
		if _, ok := c.Find(key, taskID); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func without(taskID int64) func([]backend.Task) []backend.Task {
	return func(items []backend.Task) []backend.Task {
		out := items[:0]
		for _, t := range items {
			if t.ID != taskID {
				out = append(out, t)
			}
		}
		return out
	}
}

func (a *App) fail(ctx context.Context, op string, taskID int64, err error) error {
	if taskID != 0 {
		err = fmt.Errorf("%s task %d: %w", op, taskID, err)
	} else {
		err = fmt.Errorf("%s task: %w", op, err)
	}
	utils.Debugf("app: %v", err)
	a.record(ctx, op, taskID, err)
	return err
}

func (a *App) record(ctx context.Context, op string, taskID int64, err error) {
	if a.journal == nil {
		return
	}
	if jerr := a.journal.Record(context.WithoutCancel(ctx), op, taskID, err); jerr != nil {
		utils.Debugf("app: journal: %v", jerr)
	}
}
