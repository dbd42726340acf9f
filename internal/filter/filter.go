// Package filter narrows task collections for the list screen and the
// `tasks` command.
package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"taskdeck/backend"
)

// Criteria combine with AND logic. Zero values disable a criterion.
type Criteria struct {
	ParentID   int64 // only subtasks of this task
	Personal   bool  // only tasks without a group
	Timeless   bool  // only tasks with neither date set
	Categories []int64
	Groups     []int64
	Priorities []int64
	From       time.Time // date range; both ends must be set
	To         time.Time
}

// Active reports whether any criterion is set.
func (c Criteria) Active() bool {
	return c.ParentID != 0 || c.Personal || c.Timeless ||
		len(c.Categories) > 0 || len(c.Groups) > 0 || len(c.Priorities) > 0 ||
		c.hasRange()
}

func (c Criteria) hasRange() bool {
	return !c.From.IsZero() && !c.To.IsZero()
}

// Apply returns the tasks matching every criterion, in input order.
func Apply(tasks []backend.Task, c Criteria) []backend.Task {
	if !c.Active() {
		return tasks
	}

	var result []backend.Task
	for _, t := range tasks {
		if c.Match(t) {
			result = append(result, t)
		}
	}
	return result
}

// Match reports whether t satisfies every criterion.
func (c Criteria) Match(t backend.Task) bool {
	if c.ParentID != 0 && t.ParentTaskID != c.ParentID {
		return false
	}
	if c.Personal && !t.IsPersonal() {
		return false
	}
	if c.Timeless && t.HasDates() {
		return false
	}
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, t.CategoryID) {
		return false
	}
	if len(c.Groups) > 0 && !slices.Contains(c.Groups, t.GroupID) {
		return false
	}
	if len(c.Priorities) > 0 && !slices.Contains(c.Priorities, t.PriorityID) {
		return false
	}
	if c.hasRange() && !overlaps(t, c.From, c.To) {
		return false
	}
	return true
}

// overlaps reports whether the task's span touches [from, to]. A task
// missing either date is kept.
func overlaps(t backend.Task, from, to time.Time) bool {
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return true
	}
	s, e := t.StartTime, t.EndTime
	inRange := func(x time.Time) bool { return !x.Before(from) && !x.After(to) }
	return inRange(s) || inRange(e) || (!s.After(from) && !e.Before(to))
}

// Toggle adds id to set or removes it if present.
func Toggle(set []int64, id int64) []int64 {
	if i := slices.Index(set, id); i >= 0 {
		return slices.Delete(slices.Clone(set), i, i+1)
	}
	return append(slices.Clone(set), id)
}

// String summarizes the active criteria for a status line.
func (c Criteria) String() string {
	var parts []string
	if c.ParentID != 0 {
		parts = append(parts, fmt.Sprintf("parent=%d", c.ParentID))
	}
	if c.Personal {
		parts = append(parts, "personal")
	}
	if c.Timeless {
		parts = append(parts, "timeless")
	}
	if len(c.Categories) > 0 {
		parts = append(parts, "categories="+joinIDs(c.Categories))
	}
	if len(c.Groups) > 0 {
		parts = append(parts, "groups="+joinIDs(c.Groups))
	}
	if len(c.Priorities) > 0 {
		parts = append(parts, "priorities="+joinIDs(c.Priorities))
	}
	if c.hasRange() {
		parts = append(parts, fmt.Sprintf("%s..%s", c.From.Format("2006-01-02"), c.To.Format("2006-01-02")))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func joinIDs(ids []int64) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = fmt.Sprint(id)
	}
	return strings.Join(s, ",")
}
