// Package rest implements backend.TaskAPI against the task-manager REST server.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskdeck/backend"
	"taskdeck/internal/breaker"
	"taskdeck/internal/ratelimit"
	"taskdeck/internal/utils"
)

const (
	// DefaultBaseURL is where the task-manager server listens by default
	DefaultBaseURL = "http://localhost:8080/api/v1"

	// DefaultAuthScheme prefixes the token in the Authorization header
	DefaultAuthScheme = "Bearer"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second
)

// TokenSource supplies the credential for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that can be told the server
// rejected their credential.
type Invalidator interface {
	Invalidate()
}

// Config holds connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
	// AuthScheme is sent before the token; empty sends the raw token.
	AuthScheme       string
	MaxRetries       int
	RetryBaseDelay   time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Client talks to the task-manager server.
type Client struct {
	config  Config
	baseURL string
	client  *http.Client
	tokens  TokenSource
	breaker *breaker.Breaker
	stats   *ratelimit.Stats
}

var _ backend.TaskAPI = (*Client)(nil)

// New creates a client. tokens is consulted on every request.
func New(cfg Config, tokens TokenSource) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stats := ratelimit.NewStats()
	return &Client{
		config:  cfg,
		baseURL: baseURL,
		client:  createHTTPClient(cfg, timeout, stats),
		tokens:  tokens,
		breaker: breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown),
		stats:   stats,
	}, nil
}

// createHTTPClient creates an HTTP client that retries 429 responses
func createHTTPClient(cfg Config, timeout time.Duration, stats *ratelimit.Stats) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: ratelimit.NewTransport(ratelimit.Config{
			MaxRetries:   cfg.MaxRetries,
			BaseDelay:    cfg.RetryBaseDelay,
			EnableJitter: true,
			Stats:        stats,
			Server:       "task server",
		}),
	}
}

// BaseURL returns the server base URL in use.
func (c *Client) BaseURL() string { return c.baseURL }

// CircuitState reports the breaker state.
func (c *Client) CircuitState() breaker.State { return c.breaker.State() }

// RateLimitCount reports how many 429 responses were seen.
func (c *Client) RateLimitCount() int64 { return c.stats.RateLimitCount() }

// Close releases idle connections
func (c *Client) Close() error {
	http.DefaultTransport.(*http.Transport).CloseIdleConnections()
	return nil
}

func (c *Client) authHeader(token string) string {
	if c.config.AuthScheme == "" {
		return token
	}
	return c.config.AuthScheme + " " + token
}

// do performs an authenticated request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader(token))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	utils.Debugf("%s %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if inv, ok := c.tokens.(Invalidator); ok {
			inv.Invalidate()
		}
		return fmt.Errorf("failed to %s: %w", op, backend.ErrSessionInvalid)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("failed to %s: %w", op, backend.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &backend.APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response.
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

// IsTransient reports whether err is worth a "try again" rather than a fix.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, breaker.ErrOpen) {
		return true
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return !errors.Is(err, backend.ErrSessionInvalid) && !errors.Is(err, backend.ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// =============================================================================
// Task Reads
// =============================================================================

type tasksEnvelope struct {
	Tasks []backend.Task `json:"tasks"`
}

func (c *Client) listTasks(ctx context.Context, op, path string) ([]backend.Task, error) {
	var env tasksEnvelope
	if err := c.do(ctx, op, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Tasks, nil
}

// ListTasks returns every task visible to the user
func (c *Client) ListTasks(ctx context.Context) ([]backend.Task, error) {
	return c.listTasks(ctx, "list tasks", "/tasks")
}

// ListPersonalTasks returns tasks outside any group
func (c *Client) ListPersonalTasks(ctx context.Context) ([]backend.Task, error) {
	return c.listTasks(ctx, "list personal tasks", "/tasks/not-group")
}

// ListTopPriorityTasks returns the server's most-priority selection
func (c *Client) ListTopPriorityTasks(ctx context.Context) ([]backend.Task, error) {
	return c.listTasks(ctx, "list top priority tasks", "/tasks/most-priority")
}

// ListGroupTasks returns the tasks of a group
func (c *Client) ListGroupTasks(ctx context.Context, groupID int64) ([]backend.Task, error) {
	return c.listTasks(ctx, "list group tasks", fmt.Sprintf("/tasks/group/%d", groupID))
}

// ListSubtasks returns the subtasks of a task
func (c *Client) ListSubtasks(ctx context.Context, taskID int64) ([]backend.Task, error) {
	return c.listTasks(ctx, "list subtasks", fmt.Sprintf("/tasks/get/subtasks/%d", taskID))
}

// GetTask returns a single task
func (c *Client) GetTask(ctx context.Context, taskID int64) (*backend.Task, error) {
	var env struct {
		Task *backend.Task `json:"tasks"`
	}
	if err := c.do(ctx, "get task", http.MethodGet, fmt.Sprintf("/tasks/get/%d", taskID), nil, &env); err != nil {
		return nil, err
	}
	if env.Task == nil {
		return nil, fmt.Errorf("failed to get task: %w", backend.ErrNotFound)
	}
	return env.Task, nil
}

// =============================================================================
// Task Mutations
// =============================================================================

// CreateTask creates a top-level task
func (c *Client) CreateTask(ctx context.Context, task backend.NewTask) error {
	return c.do(ctx, "create task", http.MethodPost, "/tasks/create", task, nil)
}

// CreateSubtask creates a subtask; the server copies dates, category and group from the parent
func (c *Client) CreateSubtask(ctx context.Context, subtask backend.NewSubtask) error {
	return c.do(ctx, "create subtask", http.MethodPost, "/tasks/createSubtask", subtask, nil)
}

// UpdateTask replaces a task's fields
func (c *Client) UpdateTask(ctx context.Context, task backend.Task) error {
	return c.do(ctx, "update task", http.MethodPut, fmt.Sprintf("/tasks/update/%d", task.ID), task, nil)
}

// UpdateTaskStatus moves a task to another status column
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error {
	body := map[string]int64{"status_id": statusID}
	return c.do(ctx, "update task status", http.MethodPut, fmt.Sprintf("/tasks/update/status/%d", taskID), body, nil)
}

// FinishTask marks a task and its subtasks finished
func (c *Client) FinishTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, "finish task", http.MethodPut, fmt.Sprintf("/tasks/finish/%d", taskID), nil, nil)
}

// DeleteTask removes a task
func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, "delete task", http.MethodDelete, fmt.Sprintf("/tasks/delete/%d", taskID), nil, nil)
}

// =============================================================================
// Reference Data
// =============================================================================

// ListStatuses returns the board columns
func (c *Client) ListStatuses(ctx context.Context) ([]backend.Status, error) {
	var out []backend.Status
	if err := c.do(ctx, "list statuses", http.MethodGet, "/statuses", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPriorities returns the priority levels
func (c *Client) ListPriorities(ctx context.Context) ([]backend.Priority, error) {
	var out []backend.Priority
	if err := c.do(ctx, "list priorities", http.MethodGet, "/priority", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCategories returns every category
func (c *Client) ListCategories(ctx context.Context) ([]backend.Category, error) {
	var out []backend.Category
	if err := c.do(ctx, "list categories", http.MethodGet, "/category", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListGroupCategories returns the categories used in a group
func (c *Client) ListGroupCategories(ctx context.Context, groupID int64) ([]backend.Category, error) {
	var out []backend.Category
	if err := c.do(ctx, "list group categories", http.MethodGet, fmt.Sprintf("/category/group/%d", groupID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListGroups returns the groups the user belongs to
func (c *Client) ListGroups(ctx context.Context) ([]backend.Group, error) {
	var env struct {
		Groups []backend.Group `json:"groups"`
	}
	if err := c.do(ctx, "list groups", http.MethodGet, "/group", nil, &env); err != nil {
		return nil, err
	}
	return env.Groups, nil
}

// GetGroup returns a single group
func (c *Client) GetGroup(ctx context.Context, groupID int64) (*backend.Group, error) {
	var env struct {
		Group *backend.Group `json:"group"`
	}
	if err := c.do(ctx, "get group", http.MethodGet, fmt.Sprintf("/group/%d", groupID), nil, &env); err != nil {
		return nil, err
	}
	if env.Group == nil {
		return nil, fmt.Errorf("failed to get group: %w", backend.ErrNotFound)
	}
	return env.Group, nil
}

// ListTaskChats returns the chats attached to a task
func (c *Client) ListTaskChats(ctx context.Context, taskID int64) ([]backend.Chat, error) {
	var env struct {
		Chats []backend.Chat `json:"Chats"`
	}
	if err := c.do(ctx, "list task chats", http.MethodGet, fmt.Sprintf("/chats/task/%d", taskID), nil, &env); err != nil {
		return nil, err
	}
	return env.Chats, nil
}

// CheckAuth asks the server whether the current credential is valid
func (c *Client) CheckAuth(ctx context.Context) error {
	return c.do(ctx, "check session", http.MethodGet, "/auth/check", nil, nil)
}
