// Package testutil provides shared test utilities: an in-memory task server
// and a CLI test harness.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"taskdeck/backend"
)

// APIPrefix is the path under which MockServer serves the API.
const APIPrefix = "/api/v1"

// DefaultToken is the credential MockServer accepts unless changed.
const DefaultToken = "test-token"

type failure struct {
	method string
	prefix string
	status int
	msg    string
}

// MockServer simulates the task-manager REST server.
type MockServer struct {
	server     *httptest.Server
	mu         sync.Mutex
	token      string
	tasks      map[int64]*backend.Task
	nextID     int64
	statuses   []backend.Status
	priorities []backend.Priority
	categories []backend.Category
	groups     []backend.Group
	chats      map[int64][]backend.Chat
	failures   []failure
	requestLog []string
}

// NewMockServer starts a server seeded with the default statuses and
// priorities. It is closed when the test ends.
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()
	m := &MockServer{
		token:  DefaultToken,
		tasks:  make(map[int64]*backend.Task),
		chats:  make(map[int64][]backend.Chat),
		nextID: 1,
		statuses: []backend.Status{
			{ID: 1, Name: "Done"},
			{ID: 2, Name: "To Do"},
			{ID: 3, Name: "In Progress"},
		},
		priorities: []backend.Priority{
			{ID: 1, Name: "High", Color: "#e74c3c"},
			{ID: 2, Name: "Medium", Color: "#f39c12"},
			{ID: 3, Name: "Normal", Color: "#3498db"},
			{ID: 4, Name: "Low", Color: "#95a5a6"},
		},
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the API base URL.
func (m *MockServer) URL() string {
	return m.server.URL + APIPrefix
}

// Close stops the server early, e.g. to simulate the server going away.
func (m *MockServer) Close() {
	m.server.Close()
}

// SetToken changes the accepted credential; empty disables the auth check.
func (m *MockServer) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// AddTask stores a task; a zero ID is assigned.
func (m *MockServer) AddTask(task backend.Task) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == 0 {
		task.ID = m.nextID
	}
	if task.ID >= m.nextID {
		m.nextID = task.ID + 1
	}
	t := task
	m.tasks[t.ID] = &t
	return t.ID
}

// Task returns the stored task.
func (m *MockServer) Task(id int64) (backend.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return backend.Task{}, false
	}
	return *t, true
}

// Tasks returns all stored tasks ordered by id.
func (m *MockServer) Tasks() []backend.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(backend.Task) bool { return true })
}

// SetStatuses replaces the status list.
func (m *MockServer) SetStatuses(statuses []backend.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = statuses
}

// AddCategory stores a category.
func (m *MockServer) AddCategory(c backend.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append(m.categories, c)
}

// AddGroup stores a group.
func (m *MockServer) AddGroup(g backend.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, g)
}

// AddChat attaches a chat to a task.
func (m *MockServer) AddChat(c backend.Chat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.TaskID] = append(m.chats[c.TaskID], c)
}

// FailWith makes requests matching method and path prefix (relative to the
// API base) answer with status and {"error": msg}.
func (m *MockServer) FailWith(method, prefix string, status int, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{method, prefix, status, msg})
}

// ClearFailures removes every injected failure.
func (m *MockServer) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// RequestLog returns "METHOD /path" for every request, path relative to the API base.
func (m *MockServer) RequestLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.requestLog...)
}

// CountRequests returns how many logged requests equal entry.
func (m *MockServer) CountRequests(entry string) int {
	n := 0
	for _, r := range m.RequestLog() {
		if r == entry {
			n++
		}
	}
	return n
}

func (m *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, r.Method+" "+path)
	token := m.token
	for _, f := range m.failures {
		if f.method == r.Method && strings.HasPrefix(path, f.prefix) {
			m.mu.Unlock()
			writeJSON(w, f.status, map[string]string{"error": f.msg})
			return
		}
	}
	m.mu.Unlock()

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && path == "/tasks":
		writeJSON(w, http.StatusOK, map[string]any{"tasks": m.sortedLocked(func(backend.Task) bool { return true })})
	case r.Method == http.MethodGet && path == "/tasks/not-group":
		writeJSON(w, http.StatusOK, map[string]any{"tasks": m.sortedLocked(func(t backend.Task) bool { return t.GroupID == 0 })})
	case r.Method == http.MethodGet && path == "/tasks/most-priority":
		writeJSON(w, http.StatusOK, map[string]any{"tasks": m.sortedLocked(func(t backend.Task) bool {
			return t.PriorityID == 1 && !t.IsSubtask()
		})})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/tasks/group/"):
		id, ok := idFrom(w, path, "/tasks/group/")
		if ok {
			writeJSON(w, http.StatusOK, map[string]any{"tasks": m.sortedLocked(func(t backend.Task) bool { return t.GroupID == id })})
		}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/tasks/get/subtasks/"):
		id, ok := idFrom(w, path, "/tasks/get/subtasks/")
		if ok {
			writeJSON(w, http.StatusOK, map[string]any{"tasks": m.sortedLocked(func(t backend.Task) bool { return t.ParentTaskID == id })})
		}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/tasks/get/"):
		id, ok := idFrom(w, path, "/tasks/get/")
		if !ok {
			return
		}
		t, found := m.tasks[id]
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": t})
	case r.Method == http.MethodPost && path == "/tasks/create":
		m.handleCreate(w, r)
	case r.Method == http.MethodPost && path == "/tasks/createSubtask":
		m.handleCreateSubtask(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/tasks/update/status/"):
		m.handleUpdateStatus(w, r, path)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/tasks/update/"):
		m.handleUpdate(w, r, path)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/tasks/finish/"):
		m.handleFinish(w, path)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/tasks/delete/"):
		m.handleDelete(w, path)
	case r.Method == http.MethodGet && path == "/statuses":
		writeJSON(w, http.StatusOK, m.statuses)
	case r.Method == http.MethodGet && path == "/priority":
		writeJSON(w, http.StatusOK, m.priorities)
	case r.Method == http.MethodGet && path == "/category":
		writeJSON(w, http.StatusOK, m.categories)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/category/group/"):
		id, ok := idFrom(w, path, "/category/group/")
		if ok {
			writeJSON(w, http.StatusOK, m.groupCategoriesLocked(id))
		}
	case r.Method == http.MethodGet && path == "/group":
		writeJSON(w, http.StatusOK, map[string]any{"groups": m.groups})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/group/"):
		id, ok := idFrom(w, path, "/group/")
		if !ok {
			return
		}
		for _, g := range m.groups {
			if g.ID == id {
				writeJSON(w, http.StatusOK, map[string]any{"group": g})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "group not found"})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/chats/task/"):
		id, ok := idFrom(w, path, "/chats/task/")
		if ok {
			writeJSON(w, http.StatusOK, map[string]any{"Chats": m.chats[id]})
		}
	case r.Method == http.MethodGet && path == "/auth/check":
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no route " + r.Method + " " + path})
	}
}

func (m *MockServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in backend.NewTask
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task"})
		return
	}
	t := &backend.Task{
		ID:          m.nextID,
		Name:        in.Name,
		Description: in.Description,
		PriorityID:  in.PriorityID,
		StatusID:    in.StatusID,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Attachments: in.Attachments,
		CategoryID:  in.CategoryID,
		GroupID:     in.GroupID,
	}
	m.nextID++
	m.tasks[t.ID] = t
	writeJSON(w, http.StatusCreated, map[string]any{"message": "task created", "task_id": t.ID})
}

func (m *MockServer) handleCreateSubtask(w http.ResponseWriter, r *http.Request) {
	var in backend.NewSubtask
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subtask"})
		return
	}
	parent, ok := m.tasks[in.ParentTaskID]
	if !ok || parent.IsSubtask() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid parent task"})
		return
	}
	t := &backend.Task{
		ID:           m.nextID,
		Name:         in.Name,
		Description:  in.Description,
		PriorityID:   in.PriorityID,
		StatusID:     in.StatusID,
		StartTime:    parent.StartTime,
		EndTime:      parent.EndTime,
		CategoryID:   parent.CategoryID,
		GroupID:      parent.GroupID,
		ParentTaskID: parent.ID,
	}
	m.nextID++
	m.tasks[t.ID] = t
	writeJSON(w, http.StatusCreated, map[string]any{"message": "subtask created", "task_id": t.ID})
}

func (m *MockServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := idFrom(w, path, "/tasks/update/status/")
	if !ok {
		return
	}
	var in struct {
		StatusID int64 `json:"status_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	t, found := m.tasks[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	t.StatusID = in.StatusID
	writeJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}

func (m *MockServer) handleUpdate(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := idFrom(w, path, "/tasks/update/")
	if !ok {
		return
	}
	if _, found := m.tasks[id]; !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	var in backend.Task
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	in.ID = id
	m.tasks[id] = &in
	writeJSON(w, http.StatusOK, map[string]string{"message": "task updated"})
}

func (m *MockServer) handleFinish(w http.ResponseWriter, path string) {
	id, ok := idFrom(w, path, "/tasks/finish/")
	if !ok {
		return
	}
	t, found := m.tasks[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	t.StatusID = 1
	for _, st := range m.tasks {
		if st.ParentTaskID == id {
			st.StatusID = 1
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task finished"})
}

func (m *MockServer) handleDelete(w http.ResponseWriter, path string) {
	id, ok := idFrom(w, path, "/tasks/delete/")
	if !ok {
		return
	}
	if _, found := m.tasks[id]; !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	delete(m.tasks, id)
	for sid, st := range m.tasks {
		if st.ParentTaskID == id {
			delete(m.tasks, sid)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

func (m *MockServer) sortedLocked(keep func(backend.Task) bool) []backend.Task {
	out := []backend.Task{}
	for _, t := range m.tasks {
		if keep(*t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockServer) groupCategoriesLocked(groupID int64) []backend.Category {
	used := make(map[int64]bool)
	for _, t := range m.tasks {
		if t.GroupID == groupID {
			used[t.CategoryID] = true
		}
	}
	out := []backend.Category{}
	for _, c := range m.categories {
		if used[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func idFrom(w http.ResponseWriter, path, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid id in %s", path)})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
