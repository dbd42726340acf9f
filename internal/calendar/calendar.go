// Package calendar lays tasks out on a month grid and places the day popover.
package calendar

import (
	"time"

	"taskdeck/backend"
)

// Weeks and days in the fixed month grid.
const (
	Weeks       = 6
	DaysPerWeek = 7
	CellCount   = Weeks * DaysPerWeek
)

// Cell is one day of the grid.
type Cell struct {
	Date    time.Time
	InMonth bool
	Tasks   []backend.Task
}

// Grid is a Monday-first month view, always 42 cells.
type Grid struct {
	Month time.Time
	Cells [CellCount]Cell
}

// MonthStart normalizes t to midnight on the first of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// LeadingDays is how many days of the previous month precede the 1st.
func LeadingDays(month time.Time) int {
	return (int(MonthStart(month).Weekday()) + 6) % 7
}

// Bucketize assigns each task to the cell matching its end date. Tasks with
// no end date fall out. Order within a cell follows input order.
func Bucketize(tasks []backend.Task, month time.Time) Grid {
	first := MonthStart(month)
	loc := first.Location()
	start := first.AddDate(0, 0, -LeadingDays(first))

	g := Grid{Month: first}
	index := make(map[[3]int]int, CellCount)
	for i := range g.Cells {
		d := start.AddDate(0, 0, i)
		g.Cells[i] = Cell{Date: d, InMonth: d.Month() == first.Month()}
		index[dayKey(d)] = i
	}

	for _, t := range tasks {
		if t.EndTime.IsZero() {
			continue
		}
		if i, ok := index[dayKey(t.EndTime.In(loc))]; ok {
			g.Cells[i].Tasks = append(g.Cells[i].Tasks, t)
		}
	}
	return g
}

// CellFor returns the index of the cell showing date, or -1.
func (g Grid) CellFor(date time.Time) int {
	want := dayKey(date.In(g.Month.Location()))
	for i, c := range g.Cells {
		if dayKey(c.Date) == want {
			return i
		}
	}
	return -1
}

// TopLevel drops subtasks; the calendar only shows parent tasks.
func TopLevel(tasks []backend.Task) []backend.Task {
	out := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsSubtask() {
			out = append(out, t)
		}
	}
	return out
}

// DueAt returns noon on the given day, the end time preset for tasks created
// from a calendar cell.
func DueAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, day.Location())
}

func dayKey(t time.Time) [3]int {
	return [3]int{t.Year(), int(t.Month()), t.Day()}
}
