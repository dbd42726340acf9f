package tui

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"taskdeck/backend"
	"taskdeck/internal/fetch"
	"taskdeck/internal/filter"
	"taskdeck/internal/viewstack"
)

type listState struct {
	cursor   int
	criteria filter.Criteria
}

// listRows returns the filtered tasks with each parent followed by its
// subtasks. Subtasks whose parent is filtered out come last.
func listRows(tasks []backend.Task, c filter.Criteria) []backend.Task {
	matched := filter.Apply(tasks, c)
	rows := make([]backend.Task, 0, len(matched))
	placed := make(map[int64]bool, len(matched))
	for _, t := range matched {
		if t.IsSubtask() {
			continue
		}
		rows = append(rows, t)
		placed[t.ID] = true
		for _, st := range backend.Subtasks(matched, t.ID) {
			rows = append(rows, st)
			placed[st.ID] = true
		}
	}
	for _, t := range matched {
		if !placed[t.ID] {
			rows = append(rows, t)
		}
	}
	return rows
}

func (m *Model) listRows() []backend.Task {
	return listRows(m.allTasks(), m.list.criteria)
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.listRows()
	if m.list.cursor >= len(rows) {
		m.list.cursor = max(len(rows)-1, 0)
	}
	var selected *backend.Task
	if m.list.cursor < len(rows) {
		selected = &rows[m.list.cursor]
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.list.cursor > 0 {
			m.list.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.list.cursor < len(rows)-1 {
			m.list.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if selected != nil {
			return m, m.open(taskDescriptor(*selected))
		}
	case key.Matches(msg, m.keys.Add):
		return m, m.open(viewstack.Descriptor{Kind: viewstack.KindCreateTask})
	case key.Matches(msg, m.keys.AddSubtask):
		if selected != nil && !selected.IsSubtask() {
			return m, m.openDetached(viewstack.Descriptor{
				Kind:     viewstack.KindCreateSubtask,
				EntityID: selected.ID,
			}, m.stack.Depth())
		}
	case key.Matches(msg, m.keys.Finish):
		if selected != nil {
			return m, m.finish(selected.ID)
		}
	case key.Matches(msg, m.keys.Group):
		if selected != nil && selected.GroupID != 0 {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindGroup, EntityID: selected.GroupID})
		}
	case key.Matches(msg, m.keys.Category):
		if selected != nil && selected.CategoryID != 0 {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindCategory, EntityID: selected.CategoryID})
		}

	case key.Matches(msg, m.keys.Personal):
		m.list.criteria.Personal = !m.list.criteria.Personal
		m.list.cursor = 0
	case key.Matches(msg, m.keys.Timeless):
		m.list.criteria.Timeless = !m.list.criteria.Timeless
		m.list.cursor = 0
	case key.Matches(msg, m.keys.PriorityNext):
		m.list.criteria.Priorities = m.nextPriority(m.list.criteria.Priorities)
		m.list.cursor = 0
	case key.Matches(msg, m.keys.ClearFilter):
		m.list.criteria = filter.Criteria{}
		m.list.cursor = 0
	}
	return m, nil
}

// nextPriority cycles the priority filter: off, then each priority alone.
func (m *Model) nextPriority(current []int64) []int64 {
	priorities, _ := m.app.Priorities.Cache().Get(fetch.PrioritiesKey())
	if len(priorities) == 0 {
		return nil
	}
	if len(current) != 1 {
		return []int64{priorities[0].ID}
	}
	i := slices.IndexFunc(priorities, func(p backend.Priority) bool { return p.ID == current[0] })
	if i < 0 || i == len(priorities)-1 {
		return nil
	}
	return []int64{priorities[i+1].ID}
}

func taskDescriptor(t backend.Task) viewstack.Descriptor {
	if t.IsSubtask() {
		return viewstack.Descriptor{Kind: viewstack.KindSubtask, EntityID: t.ID, ParentContext: t.ParentTaskID}
	}
	return viewstack.Descriptor{Kind: viewstack.KindTask, EntityID: t.ID}
}

func (m *Model) renderList() string {
	rows := m.listRows()
	var b strings.Builder

	title := "Tasks"
	if m.list.criteria.Active() {
		title += m.st.muted.Render("  filter: " + m.list.criteria.String())
	}
	b.WriteString(m.st.title.Render(title))
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(m.st.muted.Render("No tasks"))
		return b.String()
	}

	visible := m.height - 6
	start := 0
	if m.list.cursor >= visible && visible > 0 {
		start = m.list.cursor - visible + 1
	}
	for i := start; i < len(rows) && i < start+visible; i++ {
		b.WriteString(m.renderListRow(rows[i], i == m.list.cursor))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderListRow(t backend.Task, isCursor bool) string {
	cursor := " "
	if isCursor {
		cursor = ">"
	}
	indent := ""
	if t.IsSubtask() {
		indent = "└─"
	}
	status := "[" + m.statusName(t.StatusID) + "]"
	name := t.Name
	switch {
	case isCursor:
		name = m.st.selected.Render(name)
	case t.IsSubtask():
		name = m.st.subtask.Render(name)
	default:
		name = priorityStyle(t.PriorityID).Render(name)
	}
	line := cursor + " " + indent + status + " " + name
	if !t.EndTime.IsZero() {
		line += m.st.muted.Render("  due " + t.EndTime.Local().Format("2006-01-02"))
	}
	return truncate(line, m.width-1)
}
