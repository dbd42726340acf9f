package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task represents a task or subtask as the task-manager server serializes it.
// A zero StartTime/EndTime means "unset" (the server sends 0001-01-01T00:00:00Z).
type Task struct {
	ID           int64     `json:"task_id"`
	Name         string    `json:"task_name"`
	Description  string    `json:"task_description"`
	PriorityID   int64     `json:"priority_id"`
	StatusID     int64     `json:"status_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Attachments  string    `json:"attachments"`
	CategoryID   int64     `json:"category_id"`
	ParentTaskID int64     `json:"parent_task_id"`
	GroupID      int64     `json:"group_id"`
}

// EntityID returns the task identity.
func (t Task) EntityID() int64 { return t.ID }

// IsSubtask reports whether the task hangs under a parent task.
func (t Task) IsSubtask() bool { return t.ParentTaskID != 0 }

// IsPersonal reports whether the task belongs to no group.
func (t Task) IsPersonal() bool { return t.GroupID == 0 }

// HasDates reports whether either date is set.
func (t Task) HasDates() bool { return !t.StartTime.IsZero() || !t.EndTime.IsZero() }

// NewTask is the payload for creating a top-level task.
type NewTask struct {
	Name         string          `json:"task_name"`
	Description  string          `json:"task_description"`
	PriorityID   int64           `json:"priority_id"`
	StatusID     int64           `json:"status_id"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Attachments  string          `json:"attachments"`
	CategoryID   int64           `json:"category_id"`
	ParentTaskID int64           `json:"parent_task_id"`
	GroupID      int64           `json:"group_id"`
	Responsible  []ResponsibleID `json:"responsible_users_id"`
	Subtasks     []NewTask       `json:"subtasks"`
}

// ResponsibleID names a user responsible for a group task.
type ResponsibleID struct {
	ID int64 `json:"responsible_id"`
}

// NewSubtask is the payload for creating a subtask. The server copies dates,
// category and group from the parent.
type NewSubtask struct {
	Name         string `json:"task_name"`
	Description  string `json:"task_description"`
	PriorityID   int64  `json:"priority_id"`
	StatusID     int64  `json:"status_id"`
	ParentTaskID int64  `json:"parent_task_id"`
}

// Status is a board column.
type Status struct {
	ID   int64  `json:"status_id"`
	Name string `json:"status"`
}

// EntityID returns the status id used as its cache identity.
func (s Status) EntityID() int64 { return s.ID }

// Priority is reference data used for colouring and sorting.
type Priority struct {
	ID    int64  `json:"priority_id"`
	Name  string `json:"priority_name"`
	Color string `json:"color"`
}

// EntityID returns the priority id used as its cache identity.
func (p Priority) EntityID() int64 { return p.ID }

// Category groups tasks across lists.
type Category struct {
	ID          int64  `json:"category_id"`
	Name        string `json:"category_name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// EntityID returns the category id used as its cache identity.
func (c Category) EntityID() int64 { return c.ID }

// Group is a shared workspace; tasks with GroupID 0 are personal.
type Group struct {
	ID   int64  `json:"group_id"`
	Name string `json:"group_name"`
	Info string `json:"info"`
}

// EntityID returns the group id used as its cache identity.
func (g Group) EntityID() int64 { return g.ID }

// Chat is a discussion thread attached to a task.
type Chat struct {
	ID     int64  `json:"chat_id"`
	TaskID int64  `json:"task_id"`
	Name   string `json:"chat_name"`
}

// EntityID returns the chat id used as its cache identity.
func (c Chat) EntityID() int64 { return c.ID }

// ErrSessionInvalid is returned when the server rejects the credential (HTTP 401).
var ErrSessionInvalid = errors.New("session invalid")

// ErrNotFound is returned for HTTP 404 responses.
var ErrNotFound = errors.New("not found")

// APIError carries a non-2xx response from the server.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("failed to %s: status %d", e.Op, e.Status)
}

// Transient reports whether the failure is worth surfacing as "try again".
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == 429
}

// TaskReader is the read side of the task-manager API.
type TaskReader interface {
	ListTasks(ctx context.Context) ([]Task, error)
	ListPersonalTasks(ctx context.Context) ([]Task, error)
	ListTopPriorityTasks(ctx context.Context) ([]Task, error)
	ListGroupTasks(ctx context.Context, groupID int64) ([]Task, error)
	ListSubtasks(ctx context.Context, taskID int64) ([]Task, error)
	GetTask(ctx context.Context, taskID int64) (*Task, error)

	ListStatuses(ctx context.Context) ([]Status, error)
	ListPriorities(ctx context.Context) ([]Priority, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListGroupCategories(ctx context.Context, groupID int64) ([]Category, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, groupID int64) (*Group, error)
	ListTaskChats(ctx context.Context, taskID int64) ([]Chat, error)
}

// TaskWriter is the mutation side of the task-manager API.
type TaskWriter interface {
	CreateTask(ctx context.Context, task NewTask) error
	CreateSubtask(ctx context.Context, subtask NewSubtask) error
	UpdateTask(ctx context.Context, task Task) error
	UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error
	FinishTask(ctx context.Context, taskID int64) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// TaskAPI is everything the client needs from the server.
type TaskAPI interface {
	TaskReader
	TaskWriter
	Close() error
}

// FindTask returns the task with the given id, or nil.
func FindTask(tasks []Task, id int64) *Task {
	for i := range tasks {
		if tasks[i].ID == id {
			t := tasks[i]
			return &t
		}
	}
	return nil
}

// Subtasks returns the direct children of parentID in input order.
func Subtasks(tasks []Task, parentID int64) []Task {
	var out []Task
	for _, t := range tasks {
		if t.ParentTaskID == parentID && parentID != 0 {
			out = append(out, t)
		}
	}
	return out
}

// FindStatusByName searches statuses case-insensitively. Returns nil if no match is found.
func FindStatusByName(statuses []Status, name string) *Status {
	for _, s := range statuses {
		if strings.EqualFold(s.Name, name) {
			return &s
		}
	}
	return nil
}
