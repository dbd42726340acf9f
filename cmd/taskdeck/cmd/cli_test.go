package cmd_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"taskdeck/backend"
	"taskdeck/internal/calendar"
	"taskdeck/internal/credentials"
	"taskdeck/internal/store"
	"taskdeck/internal/testutil"
)

// newSeededCLI returns a harness whose server holds a parent task with one
// subtask and a group task.
func newSeededCLI(t *testing.T) *testutil.CLITest {
	t.Helper()
	c := testutil.NewCLITest(t)
	due := calendar.DueAt(time.Date(2026, time.October, 20, 0, 0, 0, 0, time.Local))
	c.Server.AddTask(backend.Task{ID: 10, Name: "Write report", StatusID: 2, PriorityID: 1, EndTime: due})
	c.Server.AddTask(backend.Task{ID: 11, Name: "Outline", StatusID: 2, ParentTaskID: 10, EndTime: due})
	c.Server.AddTask(backend.Task{ID: 12, Name: "Team sync", StatusID: 3, PriorityID: 3, GroupID: 4, CategoryID: 7})
	c.Server.AddGroup(backend.Group{ID: 4, Name: "Platform"})
	c.Server.AddCategory(backend.Category{ID: 7, Name: "Meetings"})
	c.Server.AddChat(backend.Chat{ID: 1, TaskID: 10, Name: "report thread"})
	return c
}

func taskNames(t *testing.T, out string) []string {
	t.Helper()
	var tasks []backend.Task
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("output is not a task list: %v\n%s", err, out)
	}
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	return names
}

func equalNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// tasks
// =============================================================================

func TestTasksTable(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("tasks")

	testutil.AssertContains(t, out, "Write report")
	testutil.AssertContains(t, out, "To Do")
	testutil.AssertContains(t, out, "High")
	testutil.AssertContains(t, out, "2026-10-20")
	testutil.AssertContains(t, out, "Team sync")
	testutil.AssertContains(t, out, "In Progress")
}

func TestTasksJSON(t *testing.T) {
	c := newSeededCLI(t)

	names := taskNames(t, c.MustExecute("tasks", "--json"))

	if !equalNames(names, "Write report", "Outline", "Team sync") {
		t.Errorf("tasks = %v", names)
	}
}

func TestTasksScopes(t *testing.T) {
	c := newSeededCLI(t)

	if names := taskNames(t, c.MustExecute("tasks", "--personal", "--json")); !equalNames(names, "Write report", "Outline") {
		t.Errorf("--personal = %v", names)
	}
	if names := taskNames(t, c.MustExecute("tasks", "--group", "4", "--json")); !equalNames(names, "Team sync") {
		t.Errorf("--group 4 = %v", names)
	}
}

func TestTasksFilters(t *testing.T) {
	c := newSeededCLI(t)

	if names := taskNames(t, c.MustExecute("tasks", "--timeless", "--json")); !equalNames(names, "Team sync") {
		t.Errorf("--timeless = %v", names)
	}
	if names := taskNames(t, c.MustExecute("tasks", "--priority", "1", "--json")); !equalNames(names, "Write report") {
		t.Errorf("--priority 1 = %v", names)
	}
	if names := taskNames(t, c.MustExecute("tasks", "--category", "7", "--json")); !equalNames(names, "Team sync") {
		t.Errorf("--category 7 = %v", names)
	}
}

func TestTasksRangeNeedsBothEnds(t *testing.T) {
	c := newSeededCLI(t)

	_, stderr := c.ExecuteAndFail("tasks", "--from", "2026-10-01")

	testutil.AssertContains(t, stderr, "--from and --to must be used together")
}

func TestTasksEmpty(t *testing.T) {
	c := testutil.NewCLITest(t)

	testutil.AssertContains(t, c.MustExecute("tasks"), "No tasks found")
	if out := c.MustExecute("tasks", "--json"); out != "[]\n" {
		t.Errorf("empty JSON list = %q", out)
	}
}

// =============================================================================
// show
// =============================================================================

func TestShowTask(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("show", "10")

	testutil.AssertContains(t, out, "Write report")
	testutil.AssertContains(t, out, "Subtasks (1):")
	testutil.AssertContains(t, out, "Outline")
	testutil.AssertContains(t, out, "report thread")
}

func TestShowTaskJSON(t *testing.T) {
	c := newSeededCLI(t)

	var got struct {
		Task     backend.Task   `json:"task"`
		Subtasks []backend.Task `json:"subtasks"`
		Chats    []backend.Chat `json:"chats"`
	}
	if err := json.Unmarshal([]byte(c.MustExecute("show", "10", "--json")), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Task.ID != 10 || len(got.Subtasks) != 1 || len(got.Chats) != 1 {
		t.Errorf("unexpected show output: %+v", got)
	}
}

func TestShowMissingTask(t *testing.T) {
	c := newSeededCLI(t)

	_, stderr := c.ExecuteAndFail("show", "99")

	testutil.AssertContains(t, stderr, "task not found: 99")
	testutil.AssertContains(t, stderr, "taskdeck tasks")
}

// =============================================================================
// add
// =============================================================================

func TestAddTask(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("add", "Buy milk", "-p", "2", "--due-date", "2026-10-22")
	testutil.AssertContains(t, out, "Created task: Buy milk")

	var created *backend.Task
	for _, task := range c.Server.Tasks() {
		if task.Name == "Buy milk" {
			created = &task
		}
	}
	if created == nil {
		t.Fatal("task was not created on the server")
	}
	if created.PriorityID != 2 {
		t.Errorf("priority = %d, want 2", created.PriorityID)
	}
	if got := created.EndTime.Local().Format("2006-01-02"); got != "2026-10-22" {
		t.Errorf("due date = %s", got)
	}
}

func TestAddTaskRelativeDate(t *testing.T) {
	c := newSeededCLI(t)

	c.MustExecute("add", "Plan", "--due-date", "+3d")

	for _, task := range c.Server.Tasks() {
		if task.Name == "Plan" {
			if got := task.EndTime.Local().Format("2006-01-02"); got != "2026-10-18" {
				t.Errorf("due date = %s, want 2026-10-18", got)
			}
			return
		}
	}
	t.Fatal("task was not created")
}

func TestAddSubtask(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("add", "Draft", "--parent", "10")
	testutil.AssertContains(t, out, "Created subtask of 10: Draft")

	for _, task := range c.Server.Tasks() {
		if task.Name == "Draft" {
			if task.ParentTaskID != 10 {
				t.Errorf("parent = %d, want 10", task.ParentTaskID)
			}
			return
		}
	}
	t.Fatal("subtask was not created")
}

func TestAddValidation(t *testing.T) {
	c := newSeededCLI(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nested subtask", []string{"add", "Deeper", "--parent", "11"}, "subtasks cannot have subtasks"},
		{"unknown priority", []string{"add", "X", "-p", "9"}, "invalid priority"},
		{"unknown status", []string{"add", "X", "-s", "9"}, "invalid status"},
		{"blank name", []string{"add", "   "}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr := c.ExecuteAndFail(tt.args...)
			testutil.AssertContains(t, stderr, tt.want)
		})
	}
	if n := len(c.Server.Tasks()); n != 3 {
		t.Errorf("server holds %d tasks after rejected input, want 3", n)
	}
}

// =============================================================================
// move / finish / delete
// =============================================================================

func TestMoveByName(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("move", "10", "in progress")

	testutil.AssertContains(t, out, "Moved task 10 to In Progress")
	if task, _ := c.Server.Task(10); task.StatusID != 3 {
		t.Errorf("status = %d, want 3", task.StatusID)
	}
}

func TestMoveByID(t *testing.T) {
	c := newSeededCLI(t)

	c.MustExecute("move", "12", "1")

	if task, _ := c.Server.Task(12); task.StatusID != 1 {
		t.Errorf("status = %d, want 1", task.StatusID)
	}
}

func TestMoveUnknownStatus(t *testing.T) {
	c := newSeededCLI(t)

	_, stderr := c.ExecuteAndFail("move", "10", "Archived")

	testutil.AssertContains(t, stderr, "invalid status")
	testutil.AssertContains(t, stderr, "In Progress")
}

func TestMoveUnknownTask(t *testing.T) {
	c := newSeededCLI(t)

	_, stderr := c.ExecuteAndFail("move", "99", "Done")

	testutil.AssertContains(t, stderr, "task not found: 99")
}

func TestMoveFailureIsJournaled(t *testing.T) {
	c := newSeededCLI(t)
	c.Server.FailWith(http.MethodPut, "/tasks/update/status/", http.StatusInternalServerError, "boom")

	c.ExecuteAndFail("move", "10", "Done")

	if task, _ := c.Server.Task(10); task.StatusID != 2 {
		t.Errorf("status changed despite the failure: %d", task.StatusID)
	}

	var entries []struct {
		Op      string `json:"op"`
		TaskID  int64  `json:"task_id"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(c.MustExecute("history", "--json")), &entries); err != nil {
		t.Fatalf("invalid history JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}
	if e := entries[0]; e.Op != "move" || e.TaskID != 10 || e.Success {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestFinishTask(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("finish", "10")

	testutil.AssertContains(t, out, "Finished task 10")
	for _, id := range []int64{10, 11} {
		if task, _ := c.Server.Task(id); task.StatusID != 1 {
			t.Errorf("task %d status = %d, want 1", id, task.StatusID)
		}
	}
	testutil.AssertContains(t, c.MustExecute("history"), "finish")
}

func TestDeletePromptDeclined(t *testing.T) {
	c := newSeededCLI(t)
	c.SetStdin("n\n")

	out := c.MustExecute("delete", "10")

	testutil.AssertContains(t, out, "Cancelled")
	if _, ok := c.Server.Task(10); !ok {
		t.Error("task deleted although the prompt was declined")
	}
}

func TestDeletePromptAccepted(t *testing.T) {
	c := newSeededCLI(t)
	c.SetStdin("y\n")

	out := c.MustExecute("delete", "10")

	testutil.AssertContains(t, out, "Write report")
	testutil.AssertContains(t, out, "Deleted task 10")
	for _, id := range []int64{10, 11} {
		if _, ok := c.Server.Task(id); ok {
			t.Errorf("task %d still exists", id)
		}
	}
}

func TestDeleteYesFlagJSON(t *testing.T) {
	c := newSeededCLI(t)

	var resp struct {
		Action string `json:"action"`
		TaskID int64  `json:"task_id"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(c.MustExecute("delete", "12", "-y", "--json")), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Action != "delete" || resp.TaskID != 12 || resp.Result != "ACTION_COMPLETED" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if _, ok := c.Server.Task(12); ok {
		t.Error("task 12 still exists")
	}
}

// =============================================================================
// calendar / reference data
// =============================================================================

func TestCalendarMonth(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("calendar")

	testutil.AssertContains(t, out, "October 2026")
	testutil.AssertContains(t, out, "Tue 20")
	testutil.AssertContains(t, out, "Write report")
	// subtasks stay off the calendar
	testutil.AssertNotContains(t, out, "Outline")
}

func TestCalendarOtherMonth(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("calendar", "--month", "2026-11")

	testutil.AssertContains(t, out, "November 2026")
	testutil.AssertContains(t, out, "No tasks due this month")
}

func TestCalendarJSON(t *testing.T) {
	c := newSeededCLI(t)

	var days []struct {
		Date  string         `json:"date"`
		Tasks []backend.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(c.MustExecute("calendar", "--json")), &days); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(days) != 1 || days[0].Date != "2026-10-20" || len(days[0].Tasks) != 1 {
		t.Errorf("unexpected calendar: %+v", days)
	}
}

func TestCalendarInvalidMonth(t *testing.T) {
	c := newSeededCLI(t)

	_, stderr := c.ExecuteAndFail("calendar", "--month", "October")

	testutil.AssertContains(t, stderr, "YYYY-MM")
}

func TestStatusesAndPriorities(t *testing.T) {
	c := newSeededCLI(t)

	out := c.MustExecute("statuses")
	testutil.AssertContains(t, out, "In Progress")

	var priorities []backend.Priority
	if err := json.Unmarshal([]byte(c.MustExecute("priorities", "--json")), &priorities); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(priorities) != 4 || priorities[0].Name != "High" {
		t.Errorf("priorities = %+v", priorities)
	}
}

// =============================================================================
// refetch / history
// =============================================================================

func TestRefetchRaisesSignal(t *testing.T) {
	c := testutil.NewCLITest(t)

	testutil.AssertContains(t, c.MustExecute("refetch"), "Refresh requested")

	st, err := store.Open(c.DBPath())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	pending, err := st.RefreshSignal().Pending(t.Context())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if !pending {
		t.Error("refresh signal not raised")
	}
	if n := len(c.Server.RequestLog()); n != 0 {
		t.Errorf("refetch contacted the server %d times", n)
	}
}

func TestHistoryEmpty(t *testing.T) {
	c := testutil.NewCLITest(t)

	testutil.AssertContains(t, c.MustExecute("history"), "No changes recorded")
}

// =============================================================================
// Credentials and session errors
// =============================================================================

func TestNoCredential(t *testing.T) {
	c := newSeededCLI(t)
	c.SetEnv(credentials.EnvToken, "")

	_, stderr := c.ExecuteAndFail("tasks")

	testutil.AssertContains(t, stderr, "no API token configured")
	testutil.AssertContains(t, stderr, "credentials set")
	if n := len(c.Server.RequestLog()); n != 0 {
		t.Errorf("server contacted %d times without a token", n)
	}
}

func TestSessionExpired(t *testing.T) {
	c := newSeededCLI(t)
	c.Server.SetToken("rotated")

	_, stderr := c.ExecuteAndFail("show", "10")

	testutil.AssertContains(t, stderr, "session has expired")
}

func TestServerOffline(t *testing.T) {
	c := newSeededCLI(t)
	c.Server.Close()

	_, stderr := c.ExecuteAndFail("show", "10")

	testutil.AssertContains(t, stderr, "is unreachable")
}

func TestCredentialsLifecycle(t *testing.T) {
	c := newSeededCLI(t)
	c.SetEnv(credentials.EnvToken, "")

	out := c.MustExecute("credentials", "get")
	testutil.AssertContains(t, out, "No token found")

	c.SetStdin(testutil.DefaultToken + "\n")
	testutil.AssertContains(t, c.MustExecute("credentials", "set"), "Token stored in system keyring")

	out = c.MustExecute("credentials", "get", "--verify")
	testutil.AssertContains(t, out, "Source: keyring")
	testutil.AssertContains(t, out, "Verified: session valid")

	// the stored token also serves ordinary commands
	testutil.AssertContains(t, c.MustExecute("tasks"), "Write report")

	testutil.AssertContains(t, c.MustExecute("credentials", "delete"), "Token removed")
	testutil.AssertContains(t, c.MustExecute("credentials", "get"), "No token found")
}

func TestCredentialsVerifyRejected(t *testing.T) {
	c := newSeededCLI(t)
	c.SetEnv(credentials.EnvToken, "stale")

	out, stderr := c.ExecuteAndFail("credentials", "get", "--verify")

	testutil.AssertContains(t, out, "Source: environment")
	testutil.AssertContains(t, stderr, "token rejected")
}
