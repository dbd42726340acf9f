package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"taskdeck/backend"
	"taskdeck/internal/app"
	"taskdeck/internal/calendar"
	"taskdeck/internal/store"
)

// =============================================================================
// calendar
// =============================================================================

func newCalendarCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the tasks due in a month",
		Long:  "Show the top-level tasks of a month by due date, using the same six-week grid as the calendar screen.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			month := calendar.MonthStart(cfg.now())
			if m, _ := cmd.Flags().GetString("month"); m != "" {
				parsed, err := time.ParseInLocation("2006-01", m, time.Local)
				if err != nil {
					return fmt.Errorf("invalid month %q (use YYYY-MM)", m)
				}
				month = parsed
			}
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				return doCalendar(ctx, s, month, stdout, jsonFlag(cmd))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("month", "", "Month to show (YYYY-MM); default is the current month")
	return cmd
}

func doCalendar(ctx context.Context, s *session, month time.Time, stdout io.Writer, jsonOutput bool) error {
	tasks, err := s.app.TaskList(ctx, app.TaskScope{})
	if err != nil {
		return err
	}
	grid := calendar.Bucketize(calendar.TopLevel(tasks), month)

	type dayJSON struct {
		Date  string         `json:"date"`
		Tasks []backend.Task `json:"tasks"`
	}
	days := []dayJSON{}
	for _, cell := range grid.Cells {
		if cell.InMonth && len(cell.Tasks) > 0 {
			days = append(days, dayJSON{Date: cell.Date.Format("2006-01-02"), Tasks: cell.Tasks})
		}
	}

	if jsonOutput {
		return writeJSON(stdout, days)
	}

	_, _ = fmt.Fprintln(stdout, grid.Month.Format("January 2006"))
	if len(days) == 0 {
		_, _ = fmt.Fprintln(stdout, "No tasks due this month")
		return nil
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	for _, d := range days {
		date, _ := time.ParseInLocation("2006-01-02", d.Date, time.Local)
		for i, t := range d.Tasks {
			label := ""
			if i == 0 {
				label = date.Format("Mon 2")
			}
			tbl.AddRow(label, t.ID, t.Name)
		}
	}
	_, _ = fmt.Fprintln(stdout, tbl)
	return nil
}

// =============================================================================
// statuses / priorities
// =============================================================================

func newStatusesCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List the board columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				statuses, err := s.app.StatusList(ctx)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					if statuses == nil {
						statuses = []backend.Status{}
					}
					return writeJSON(stdout, statuses)
				}
				tbl := uitable.New()
				tbl.AddRow("ID", "NAME")
				for _, st := range statuses {
					tbl.AddRow(st.ID, st.Name)
				}
				_, _ = fmt.Fprintln(stdout, tbl)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newPrioritiesCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "priorities",
		Short: "List the task priorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, func(ctx context.Context, s *session) error {
				priorities, err := s.app.PriorityList(ctx)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					if priorities == nil {
						priorities = []backend.Priority{}
					}
					return writeJSON(stdout, priorities)
				}
				tbl := uitable.New()
				tbl.AddRow("ID", "NAME", "COLOR")
				for _, p := range priorities {
					tbl.AddRow(p.ID, p.Name, p.Color)
				}
				_, _ = fmt.Fprintln(stdout, tbl)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// refetch / history
// =============================================================================

func newRefetchCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "refetch",
		Short: "Ask a running board to reload its tasks",
		Long:  "Raise the refresh signal in the local store. A running TUI notices the change and refetches tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			st, err := store.Open(c.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.RefreshSignal().Raise(cmd.Context()); err != nil {
				return err
			}
			return reportAction(cmd, stdout, "refetch", 0, "Refresh requested")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newHistoryCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent task changes and whether the server accepted them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			c, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			st, err := store.Open(c.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entries, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(entries, stdout, jsonFlag(cmd))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	return cmd
}

func printHistory(entries []store.Entry, stdout io.Writer, jsonOutput bool) error {
	if jsonOutput {
		type entryJSON struct {
			Timestamp string `json:"timestamp"`
			Op        string `json:"op"`
			TaskID    int64  `json:"task_id,omitempty"`
			Success   bool   `json:"success"`
			ErrorType string `json:"error_type,omitempty"`
			Error     string `json:"error,omitempty"`
		}
		out := make([]entryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryJSON{
				Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
				Op:        e.Op,
				TaskID:    e.TaskID,
				Success:   e.Success,
				ErrorType: e.ErrorType,
				Error:     e.Error,
			})
		}
		return writeJSON(stdout, out)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(stdout, "No changes recorded")
		return nil
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 60
	tbl.AddRow("TIME", "OP", "TASK", "RESULT")
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = e.ErrorType + ": " + e.Error
		}
		tbl.AddRow(e.Timestamp.Local().Format("2006-01-02 15:04"), e.Op, e.TaskID, result)
	}
	_, _ = fmt.Fprintln(stdout, tbl)
	return nil
}
