package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"taskdeck/backend"
	"taskdeck/internal/app"
	"taskdeck/internal/board"
	"taskdeck/internal/fetch"
	"taskdeck/internal/filter"
	"taskdeck/internal/utils"
)

// =============================================================================
// tasks
// =============================================================================

func newTasksCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Long:  "List tasks visible to you, or those of one group, your personal tasks or the most urgent ones.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, criteria, err := taskQuery(cmd, cfg.now())
			if err != nil {
				return err
			}
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				return doTasks(ctx, s, scope, criteria, stdout, jsonFlag(cmd))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Int64("group", 0, "Only tasks of this group")
	cmd.Flags().Bool("personal", false, "Only tasks without a group")
	cmd.Flags().Bool("top", false, "Only the most urgent tasks")
	cmd.Flags().Bool("timeless", false, "Only tasks with neither date set")
	cmd.Flags().Int64Slice("priority", nil, "Filter by priority id (repeatable)")
	cmd.Flags().Int64Slice("category", nil, "Filter by category id (repeatable)")
	cmd.Flags().String("from", "", "Start of a date range (YYYY-MM-DD, today, +3d)")
	cmd.Flags().String("to", "", "End of a date range")
	return cmd
}

// taskQuery reads the scope and filter flags
func taskQuery(cmd *cobra.Command, now time.Time) (app.TaskScope, filter.Criteria, error) {
	var scope app.TaskScope
	var c filter.Criteria

	scope.GroupID, _ = cmd.Flags().GetInt64("group")
	scope.Personal, _ = cmd.Flags().GetBool("personal")
	scope.Top, _ = cmd.Flags().GetBool("top")
	n := 0
	for _, set := range []bool{scope.GroupID != 0, scope.Personal, scope.Top} {
		if set {
			n++
		}
	}
	if n > 1 {
		return scope, c, errors.New("--group, --personal and --top are mutually exclusive")
	}

	c.Timeless, _ = cmd.Flags().GetBool("timeless")
	c.Priorities, _ = cmd.Flags().GetInt64Slice("priority")
	c.Categories, _ = cmd.Flags().GetInt64Slice("category")

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	from, err := utils.ParseDateFlagAt(fromStr, now)
	if err != nil {
		return scope, c, err
	}
	to, err := utils.ParseDateFlagAt(toStr, now)
	if err != nil {
		return scope, c, err
	}
	if (from == nil) != (to == nil) {
		return scope, c, errors.New("--from and --to must be used together")
	}
	if from != nil {
		if err := utils.ValidateDateRange(from, to); err != nil {
			return scope, c, err
		}
		c.From = *from
		// the range covers the whole last day
		c.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return scope, c, nil
}

func doTasks(ctx context.Context, s *session, scope app.TaskScope, c filter.Criteria, stdout io.Writer, jsonOutput bool) error {
	var statuses []backend.Status
	var priorities []backend.Priority
	var tasks []backend.Task
	err := fetch.LoadAll(ctx,
		func(ctx context.Context) (err error) { tasks, err = s.app.TaskList(ctx, scope); return },
		func(ctx context.Context) (err error) { statuses, err = s.app.StatusList(ctx); return },
		func(ctx context.Context) (err error) { priorities, err = s.app.PriorityList(ctx); return },
	)
	if err != nil {
		return err
	}
	tasks = filter.Apply(tasks, c)

	if jsonOutput {
		if tasks == nil {
			tasks = []backend.Task{}
		}
		return writeJSON(stdout, tasks)
	}

	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(stdout, "No tasks found")
		return nil
	}

	tbl := uitable.New()
	tbl.MaxColWidth = 50
	tbl.AddRow("ID", "NAME", "STATUS", "PRIORITY", "DUE", "PARENT")
	for _, t := range tasks {
		parent := ""
		if t.IsSubtask() {
			parent = strconv.FormatInt(t.ParentTaskID, 10)
		}
		tbl.AddRow(t.ID, t.Name, statusName(statuses, t.StatusID), priorityName(priorities, t.PriorityID), formatDate(t.EndTime), parent)
	}
	_, _ = fmt.Fprintln(stdout, tbl)
	return nil
}

func statusName(statuses []backend.Status, id int64) string {
	for _, s := range statuses {
		if s.ID == id {
			return s.Name
		}
	}
	return "-"
}

func priorityName(priorities []backend.Priority, id int64) string {
	for _, p := range priorities {
		if p.ID == id {
			return p.Name
		}
	}
	return "-"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02")
}

// parseTaskID parses a task id argument
func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id: %q", arg)
	}
	return id, nil
}

// =============================================================================
// show
// =============================================================================

func newShowCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task with its subtasks and chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				return doShow(ctx, s, id, stdout, jsonFlag(cmd))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doShow(ctx context.Context, s *session, id int64, stdout io.Writer, jsonOutput bool) error {
	task, err := s.app.Task(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		return utils.ErrTaskNotFound(id)
	}
	if err != nil {
		return err
	}

	var subtasks []backend.Task
	var chats []backend.Chat
	var statuses []backend.Status
	err = fetch.LoadAll(ctx,
		func(ctx context.Context) (err error) {
			if !task.IsSubtask() {
				subtasks, err = s.app.Subtasks(ctx, id)
			}
			return
		},
		func(ctx context.Context) (err error) { chats, err = s.app.ChatList(ctx, id); return },
		func(ctx context.Context) (err error) { statuses, err = s.app.StatusList(ctx); return },
	)
	if err != nil {
		return err
	}

	if jsonOutput {
		type showJSON struct {
			Task     backend.Task   `json:"task"`
			Subtasks []backend.Task `json:"subtasks"`
			Chats    []backend.Chat `json:"chats"`
		}
		out := showJSON{Task: *task, Subtasks: subtasks, Chats: chats}
		if out.Subtasks == nil {
			out.Subtasks = []backend.Task{}
		}
		if out.Chats == nil {
			out.Chats = []backend.Chat{}
		}
		return writeJSON(stdout, out)
	}

	tbl := uitable.New()
	tbl.Wrap = true
	tbl.MaxColWidth = 70
	tbl.AddRow("ID:", task.ID)
	tbl.AddRow("Name:", task.Name)
	tbl.AddRow("Status:", statusName(statuses, task.StatusID))
	if task.IsSubtask() {
		tbl.AddRow("Parent:", task.ParentTaskID)
	}
	if !task.StartTime.IsZero() {
		tbl.AddRow("Start:", formatDate(task.StartTime))
	}
	if !task.EndTime.IsZero() {
		tbl.AddRow("Due:", formatDate(task.EndTime))
	}
	if task.GroupID != 0 {
		tbl.AddRow("Group:", task.GroupID)
	}
	if task.Description != "" {
		tbl.AddRow("Description:", task.Description)
	}
	_, _ = fmt.Fprintln(stdout, tbl)

	if len(subtasks) > 0 {
		_, _ = fmt.Fprintf(stdout, "\nSubtasks (%d):\n", len(subtasks))
		for _, st := range subtasks {
			_, _ = fmt.Fprintf(stdout, "  %d  %s [%s]\n", st.ID, st.Name, statusName(statuses, st.StatusID))
		}
	}
	if len(chats) > 0 {
		_, _ = fmt.Fprintf(stdout, "\nChats (%d):\n", len(chats))
		for _, c := range chats {
			_, _ = fmt.Fprintf(stdout, "  %s\n", c.Name)
		}
	}
	return nil
}

// =============================================================================
// add
// =============================================================================

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a task or, with --parent, a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				return doAdd(ctx, cmd, s, cfg.now(), args[0], stdout)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("description", "d", "", "Task description (markdown)")
	cmd.Flags().Int64P("status", "s", 0, "Status id")
	cmd.Flags().Int64P("priority", "p", 0, "Priority id")
	cmd.Flags().String("start-date", "", "Start date (YYYY-MM-DD, today, +3d)")
	cmd.Flags().String("due-date", "", "Due date (YYYY-MM-DD, today, +3d)")
	cmd.Flags().Int64("group", 0, "Group id")
	cmd.Flags().Int64("category", 0, "Category id")
	cmd.Flags().Int64P("parent", "P", 0, "Parent task id; the subtask takes the parent's dates, category and group")
	return cmd
}

func doAdd(ctx context.Context, cmd *cobra.Command, s *session, now time.Time, name string, stdout io.Writer) error {
	description, _ := cmd.Flags().GetString("description")
	statusID, _ := cmd.Flags().GetInt64("status")
	priorityID, _ := cmd.Flags().GetInt64("priority")
	parentID, _ := cmd.Flags().GetInt64("parent")

	// validation needs the reference data
	if err := s.app.LoadBoard(ctx); err != nil {
		return err
	}

	if parentID != 0 {
		err := s.app.CreateSubtask(ctx, backend.NewSubtask{
			Name:         name,
			Description:  description,
			StatusID:     statusID,
			PriorityID:   priorityID,
			ParentTaskID: parentID,
		})
		if err != nil {
			return err
		}
		return reportAction(cmd, stdout, "create_subtask", parentID, fmt.Sprintf("Created subtask of %d: %s", parentID, name))
	}

	in := backend.NewTask{
		Name:        name,
		Description: description,
		StatusID:    statusID,
		PriorityID:  priorityID,
	}
	in.GroupID, _ = cmd.Flags().GetInt64("group")
	in.CategoryID, _ = cmd.Flags().GetInt64("category")
	startStr, _ := cmd.Flags().GetString("start-date")
	dueStr, _ := cmd.Flags().GetString("due-date")
	start, err := utils.ParseDateFlagAt(startStr, now)
	if err != nil {
		return err
	}
	due, err := utils.ParseDateFlagAt(dueStr, now)
	if err != nil {
		return err
	}
	if start != nil {
		in.StartTime = *start
	}
	if due != nil {
		in.EndTime = *due
	}

	if err := s.app.CreateTask(ctx, in); err != nil {
		return err
	}
	return reportAction(cmd, stdout, "create", 0, "Created task: "+name)
}

func reportAction(cmd *cobra.Command, stdout io.Writer, action string, taskID int64, text string) error {
	if jsonFlag(cmd) {
		return outputActionJSON(stdout, action, taskID)
	}
	_, _ = fmt.Fprintln(stdout, text)
	return nil
}

// =============================================================================
// move / finish / delete
// =============================================================================

func newMoveCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "move [task-id] [status]",
		Short: "Move a task to another board column",
		Long:  "Move a task to the status given by id or name, as dragging a card on the board does.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				return doMove(ctx, cmd, s, id, args[1], stdout)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// resolveStatus matches a status by id or case-insensitive name
func resolveStatus(statuses []backend.Status, arg string) (backend.Status, error) {
	id, idErr := strconv.ParseInt(arg, 10, 64)
	valid := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if (idErr == nil && st.ID == id) || strings.EqualFold(st.Name, arg) {
			return st, nil
		}
		valid = append(valid, st.Name)
	}
	return backend.Status{}, utils.ErrInvalidStatus(arg, valid)
}

func doMove(ctx context.Context, cmd *cobra.Command, s *session, id int64, statusArg string, stdout io.Writer) error {
	if err := s.app.LoadBoard(ctx); err != nil {
		return err
	}
	statuses, err := s.app.StatusList(ctx)
	if err != nil {
		return err
	}
	status, err := resolveStatus(statuses, statusArg)
	if err != nil {
		return err
	}

	if err := s.app.Board.BeginDrag(id); err != nil {
		if errors.Is(err, board.ErrUnknownTask) {
			return utils.ErrTaskNotFound(id)
		}
		return err
	}
	if err := s.app.Board.Drop(ctx, board.ColumnFor(status.ID)); err != nil {
		return err
	}
	return reportAction(cmd, stdout, "move", id, fmt.Sprintf("Moved task %d to %s", id, status.Name))
}

func newFinishCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "finish [task-id]",
		Short: "Finish a task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				if err := s.app.LoadBoard(ctx); err != nil {
					return err
				}
				if err := s.app.Board.Finish(ctx, id); err != nil {
					if errors.Is(err, board.ErrUnknownTask) {
						return utils.ErrTaskNotFound(id)
					}
					return err
				}
				return reportAction(cmd, stdout, "finish", id, fmt.Sprintf("Finished task %d", id))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				if err := s.app.LoadBoard(ctx); err != nil {
					return err
				}
				task, ok := s.app.Tasks.Cache().Find(fetch.TasksKey(), id)
				if !ok {
					return utils.ErrTaskNotFound(id)
				}
				if !yes && !utils.PromptYesNoWithReader(fmt.Sprintf("Delete task %d %q and its subtasks?", id, task.Name), cfg.stdin(), stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
				if err := s.app.Delete(ctx, id); err != nil {
					if errors.Is(err, app.ErrUnknownTask) {
						return utils.ErrTaskNotFound(id)
					}
					return err
				}
				return reportAction(cmd, stdout, "delete", id, fmt.Sprintf("Deleted task %d", id))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}
