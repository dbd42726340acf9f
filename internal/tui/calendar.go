package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskdeck/backend"
	"taskdeck/internal/calendar"
	"taskdeck/internal/viewstack"
)

// terminalBounds limits the day popover, in terminal cells.
var terminalBounds = calendar.Bounds{MinW: 24, MaxW: 40, MinH: 6, MaxH: 14}

// popoverMargin keeps the popover one cell off the screen edge.
const popoverMargin = 1

// gridTop is the first screen row of the day cells: tabs, month title and
// weekday header.
const gridTop = 3

type popoverState struct {
	placement calendar.Placement
	date      time.Time
	tasks     []backend.Task
	cursor    int
}

type calendarState struct {
	month   time.Time
	cursor  time.Time
	popover *popoverState
}

func newCalendarState(now time.Time) calendarState {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return calendarState{month: calendar.MonthStart(now), cursor: day}
}

func (m *Model) calendarGrid() calendar.Grid {
	return calendar.Bucketize(calendar.TopLevel(m.allTasks()), m.cal.month)
}

// cellSize is the size of one day cell for the current terminal.
func (m *Model) cellSize() (w, h int) {
	w = m.width / calendar.DaysPerWeek
	h = (m.height - gridTop - 3) / calendar.Weeks
	if w < 6 {
		w = 6
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

func (m *Model) cellRect(index int) calendar.Rect {
	w, h := m.cellSize()
	return calendar.Rect{
		X: (index % calendar.DaysPerWeek) * w,
		Y: gridTop + (index/calendar.DaysPerWeek)*h,
		W: w,
		H: h,
	}
}

func (m *Model) moveCursor(days int) {
	m.cal.cursor = m.cal.cursor.AddDate(0, 0, days)
	if m.cal.cursor.Month() != m.cal.month.Month() || m.cal.cursor.Year() != m.cal.month.Year() {
		m.cal.month = calendar.MonthStart(m.cal.cursor)
	}
}

func (m *Model) shiftMonth(months int) {
	m.cal.month = m.cal.month.AddDate(0, months, 0)
	m.cal.cursor = m.cal.month
}

func (m *Model) handleCalendarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if p := m.cal.popover; p != nil {
		return m.handlePopoverKey(p, msg)
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-calendar.DaysPerWeek)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(calendar.DaysPerWeek)
	case key.Matches(msg, m.keys.PrevMonth):
		m.shiftMonth(-1)
	case key.Matches(msg, m.keys.NextMonth):
		m.shiftMonth(1)
	case key.Matches(msg, m.keys.Open):
		m.openPopover()
	case key.Matches(msg, m.keys.Add):
		return m, m.open(viewstack.Descriptor{
			Kind:          viewstack.KindCreateTask,
			ParentContext: calendar.DueAt(m.cal.cursor),
		})
	}
	return m, nil
}

func (m *Model) openPopover() {
	grid := m.calendarGrid()
	i := grid.CellFor(m.cal.cursor)
	if i < 0 || len(grid.Cells[i].Tasks) == 0 {
		return
	}
	cell := m.cellRect(i)
	viewport := calendar.Rect{W: m.width, H: m.height}
	content := calendar.ContentSize(cell, terminalBounds)
	m.cal.popover = &popoverState{
		placement: calendar.PlacePopover(cell, viewport, content, popoverMargin),
		date:      grid.Cells[i].Date,
		tasks:     grid.Cells[i].Tasks,
	}
}

func (m *Model) handlePopoverKey(p *popoverState, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.cal.popover = nil
	case key.Matches(msg, m.keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if p.cursor < len(p.tasks)-1 {
			p.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		task := p.tasks[p.cursor]
		m.cal.popover = nil
		return m, m.open(viewstack.Descriptor{Kind: viewstack.KindTask, EntityID: task.ID})
	}
	return m, nil
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (m *Model) renderCalendar() string {
	grid := m.calendarGrid()
	w, h := m.cellSize()

	var b strings.Builder
	b.WriteString(m.st.title.Render(grid.Month.Format("January 2006")))
	b.WriteString("\n")
	header := make([]string, len(weekdays))
	for i, d := range weekdays {
		header[i] = lipgloss.NewStyle().Width(w).Render(d)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteString("\n")

	cursor := grid.CellFor(m.cal.cursor)
	for week := 0; week < calendar.Weeks; week++ {
		row := make([]string, calendar.DaysPerWeek)
		for day := 0; day < calendar.DaysPerWeek; day++ {
			i := week*calendar.DaysPerWeek + day
			row[day] = m.renderCell(grid.Cells[i], i == cursor, w, h)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		if week < calendar.Weeks-1 {
			b.WriteString("\n")
		}
	}

	view := b.String()
	if p := m.cal.popover; p != nil {
		// the screen view is offset by the tab row
		r := p.placement.Rect
		view = overlay(view, m.renderPopover(p), r.X, r.Y-1)
	}
	return view
}

func (m *Model) renderCell(c calendar.Cell, isCursor bool, w, h int) string {
	style := m.st.cell
	switch {
	case isCursor:
		style = m.st.cursorCell
	case !c.InMonth:
		style = m.st.outsideCell
	}
	inner := w - 1
	lines := []string{itoa(int64(c.Date.Day()))}
	shown := c.Tasks
	room := h - 2
	if len(shown) > room {
		shown = shown[:max(room-1, 0)]
	}
	for _, t := range shown {
		lines = append(lines, priorityStyle(t.PriorityID).Render(truncate(t.Name, inner)))
	}
	if hidden := len(c.Tasks) - len(shown); hidden > 0 {
		lines = append(lines, m.st.muted.Render(truncate("+"+itoa(int64(hidden))+" more", inner)))
	}
	return style.Width(inner).Height(h - 1).MaxHeight(h).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderPopover(p *popoverState) string {
	r := p.placement.Rect
	var b strings.Builder
	b.WriteString(m.st.title.Render(p.date.Format("Mon 2 Jan")))
	for i, t := range p.tasks {
		b.WriteString("\n")
		line := truncate(t.Name, r.W-6)
		if i == p.cursor {
			line = m.st.selected.Render("> " + line)
		} else {
			line = "  " + priorityStyle(t.PriorityID).Render(line)
		}
		b.WriteString(line)
	}
	return m.st.popover.Width(r.W - 2).Height(r.H - 2).MaxHeight(r.H).Render(b.String())
}
