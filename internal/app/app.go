// Package app wires the REST client to the typed caches, fetch coordinators
// and board engine shared by the TUI and the CLI commands.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskdeck/backend"
	"taskdeck/internal/board"
	"taskdeck/internal/cache"
	"taskdeck/internal/fetch"
	"taskdeck/internal/refresh"
	"taskdeck/internal/utils"
)

// SnapshotStore persists fetched collections between runs.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key string, items any) error
	LoadSnapshot(ctx context.Context, key string, dst any) (time.Time, error)
}

// Options configures an App. Zero values are usable.
type Options struct {
	Gate           fetch.Gate
	Refresh        refresh.Signal
	Snapshots      SnapshotStore
	Journal        board.Journal
	TTL            time.Duration
	FinishedStatus int64
	OnError        func(error)
}

// App is one session against the task server.
type App struct {
	API        backend.TaskAPI
	Tasks      *fetch.Coordinator[backend.Task]
	Statuses   *fetch.Coordinator[backend.Status]
	Priorities *fetch.Coordinator[backend.Priority]
	Categories *fetch.Coordinator[backend.Category]
	Groups     *fetch.Coordinator[backend.Group]
	Chats      *fetch.Coordinator[backend.Chat]
	Board      *board.Engine
	Refresh    refresh.Signal

	ttl       time.Duration
	snapshots SnapshotStore
	journal   board.Journal
}

// persisted lists the keys whose collections survive restarts.
var persisted = map[string]bool{
	fetch.TasksKey():      true,
	fetch.StatusesKey():   true,
	fetch.PrioritiesKey(): true,
	fetch.CategoriesKey(): true,
	fetch.GroupsKey():     true,
}

// New builds the session around api.
func New(api backend.TaskAPI, opts Options) *App {
	a := &App{
		API:       api,
		Refresh:   opts.Refresh,
		ttl:       opts.TTL,
		snapshots: opts.Snapshots,
		journal:   opts.Journal,
	}
	if a.Refresh == nil {
		a.Refresh = refresh.NewMemory()
	}

	a.Tasks = newCoordinator[backend.Task](a, opts.Gate)
	a.Statuses = newCoordinator[backend.Status](a, opts.Gate)
	a.Priorities = newCoordinator[backend.Priority](a, opts.Gate)
	a.Categories = newCoordinator[backend.Category](a, opts.Gate)
	a.Groups = newCoordinator[backend.Group](a, opts.Gate)
	a.Chats = newCoordinator[backend.Chat](a, opts.Gate)

	boardOpts := []board.Option{}
	if opts.FinishedStatus != 0 {
		boardOpts = append(boardOpts, board.WithFinishedStatus(opts.FinishedStatus))
	}
	if opts.OnError != nil {
		boardOpts = append(boardOpts, board.WithErrorSink(opts.OnError))
	}
	if opts.Journal != nil {
		boardOpts = append(boardOpts, board.WithJournal(opts.Journal))
	}
	a.Board = board.New(a.Tasks.Cache(), api, boardOpts...)
	return a
}

func newCoordinator[T cache.Entity](a *App, gate fetch.Gate) *fetch.Coordinator[T] {
	opts := []fetch.Option[T]{fetch.WithOnLoaded[T](func(key string, items []T) {
		a.saveSnapshot(key, items)
	})}
	if gate != nil {
		opts = append(opts, fetch.WithGate[T](gate))
	}
	return fetch.New(cache.New[T](), opts...)
}

// TTL returns how long fetched collections stay fresh.
func (a *App) TTL() time.Duration { return a.ttl }

// Close releases the API client.
func (a *App) Close() error { return a.API.Close() }

// =============================================================================
// Reads
// =============================================================================

// TaskScope selects which task collection a screen shows.
type TaskScope struct {
	Personal bool
	Top      bool
	GroupID  int64
}

// Key returns the fetch key for the scope.
func (s TaskScope) Key() string {
	switch {
	case s.GroupID != 0:
		return fetch.GroupTasksKey(s.GroupID)
	case s.Personal:
		return fetch.PersonalTasksKey()
	case s.Top:
		return fetch.TopTasksKey()
	default:
		return fetch.TasksKey()
	}
}

func (a *App) taskLoader(s TaskScope) fetch.Loader[backend.Task] {
	switch {
	case s.GroupID != 0:
		return func(ctx context.Context) ([]backend.Task, error) { return a.API.ListGroupTasks(ctx, s.GroupID) }
	case s.Personal:
		return a.API.ListPersonalTasks
	case s.Top:
		return a.API.ListTopPriorityTasks
	default:
		return a.API.ListTasks
	}
}

// TaskList returns the tasks in scope, fetching when stale.
func (a *App) TaskList(ctx context.Context, s TaskScope) ([]backend.Task, error) {
	return a.Tasks.Ensure(ctx, s.Key(), a.ttl, a.taskLoader(s))
}

// Task returns one task from the cache, or from the server when it is not cached.
func (a *App) Task(ctx context.Context, taskID int64) (*backend.Task, error) {
	if t, ok := a.Tasks.Cache().Find(fetch.TasksKey(), taskID); ok {
		return &t, nil
	}
	return a.API.GetTask(ctx, taskID)
}

// Subtasks returns the direct children of a task.
func (a *App) Subtasks(ctx context.Context, taskID int64) ([]backend.Task, error) {
	return a.Tasks.Ensure(ctx, fetch.SubtasksKey(taskID), a.ttl, func(ctx context.Context) ([]backend.Task, error) {
		return a.API.ListSubtasks(ctx, taskID)
	})
}

// StatusList returns the statuses, fetched once per session.
func (a *App) StatusList(ctx context.Context) ([]backend.Status, error) {
	return a.Statuses.Ensure(ctx, fetch.StatusesKey(), 0, a.API.ListStatuses)
}

// PriorityList returns the priorities, fetched once per session.
func (a *App) PriorityList(ctx context.Context) ([]backend.Priority, error) {
	return a.Priorities.Ensure(ctx, fetch.PrioritiesKey(), 0, a.API.ListPriorities)
}

// CategoryList returns all categories, or a group's categories when groupID is set.
func (a *App) CategoryList(ctx context.Context, groupID int64) ([]backend.Category, error) {
	if groupID != 0 {
		return a.Categories.Ensure(ctx, fetch.GroupCategoriesKey(groupID), a.ttl, func(ctx context.Context) ([]backend.Category, error) {
			return a.API.ListGroupCategories(ctx, groupID)
		})
	}
	return a.Categories.Ensure(ctx, fetch.CategoriesKey(), a.ttl, a.API.ListCategories)
}

// GroupList returns the groups.
func (a *App) GroupList(ctx context.Context) ([]backend.Group, error) {
	return a.Groups.Ensure(ctx, fetch.GroupsKey(), a.ttl, a.API.ListGroups)
}

// Group returns one group from the cache, or from the server.
func (a *App) Group(ctx context.Context, groupID int64) (*backend.Group, error) {
	if g, ok := a.Groups.Cache().Find(fetch.GroupsKey(), groupID); ok {
		return &g, nil
	}
	return a.API.GetGroup(ctx, groupID)
}

// ChatList returns a task's chats.
func (a *App) ChatList(ctx context.Context, taskID int64) ([]backend.Chat, error) {
	return a.Chats.Ensure(ctx, fetch.ChatsKey(taskID), a.ttl, func(ctx context.Context) ([]backend.Chat, error) {
		return a.API.ListTaskChats(ctx, taskID)
	})
}

// LoadBoard loads what the board and calendar need, concurrently.
func (a *App) LoadBoard(ctx context.Context) error {
	return fetch.LoadAll(ctx,
		func(ctx context.Context) error { _, err := a.TaskList(ctx, TaskScope{}); return err },
		func(ctx context.Context) error { _, err := a.StatusList(ctx); return err },
		func(ctx context.Context) error { _, err := a.PriorityList(ctx); return err },
	)
}

// Refetch reloads the board collections even when they are fresh.
func (a *App) Refetch(ctx context.Context) error {
	return fetch.LoadAll(ctx,
		func(ctx context.Context) error {
			_, err := a.Tasks.Fetch(ctx, fetch.TasksKey(), a.API.ListTasks)
			return err
		},
		func(ctx context.Context) error {
			_, err := a.Statuses.Fetch(ctx, fetch.StatusesKey(), a.API.ListStatuses)
			return err
		},
		func(ctx context.Context) error {
			_, err := a.Priorities.Fetch(ctx, fetch.PrioritiesKey(), a.API.ListPriorities)
			return err
		},
	)
}

// InvalidateTasks drops every cached task collection.
func (a *App) InvalidateTasks() {
	for _, key := range a.Tasks.Cache().Keys() {
		if strings.HasPrefix(key, "tasks") {
			a.Tasks.Invalidate(key)
		}
	}
}

// ConsumeRefresh clears a pending refresh signal and, if one was pending,
// invalidates the task collections. It reports whether a refetch is due.
func (a *App) ConsumeRefresh(ctx context.Context) (bool, error) {
	pending, err := refresh.Consume(ctx, a.Refresh)
	if err != nil || !pending {
		return false, err
	}
	a.InvalidateTasks()
	return true, nil
}

// =============================================================================
// Snapshots
// =============================================================================

func (a *App) saveSnapshot(key string, items any) {
	if a.snapshots == nil || !persisted[key] {
		return
	}
	if err := a.snapshots.SaveSnapshot(context.Background(), key, items); err != nil {
		utils.Debugf("app: save snapshot %s: %v", key, err)
	}
}

// RestoreSnapshots seeds the caches with the collections saved by the last
// run. Missing snapshots are skipped.
func (a *App) RestoreSnapshots(ctx context.Context) int {
	if a.snapshots == nil {
		return 0
	}
	n := 0
	n += restore(ctx, a.snapshots, a.Tasks.Cache(), fetch.TasksKey())
	n += restore(ctx, a.snapshots, a.Statuses.Cache(), fetch.StatusesKey())
	n += restore(ctx, a.snapshots, a.Priorities.Cache(), fetch.PrioritiesKey())
	n += restore(ctx, a.snapshots, a.Categories.Cache(), fetch.CategoriesKey())
	n += restore(ctx, a.snapshots, a.Groups.Cache(), fetch.GroupsKey())
	return n
}

func restore[T cache.Entity](ctx context.Context, s SnapshotStore, c *cache.Cache[T], key string) int {
	var items []T
	if _, err := s.LoadSnapshot(ctx, key, &items); err != nil {
		utils.Debugf("app: restore %s: %v", key, err)
		return 0
	}
	c.Replace(key, items)
	return 1
}

// IsSessionError reports whether err means the credential is missing or rejected.
func IsSessionError(err error) bool {
	return errors.Is(err, backend.ErrSessionInvalid) || errors.Is(err, fetch.ErrNoCredential)
}
