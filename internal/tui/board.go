package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskdeck/backend"
	"taskdeck/internal/board"
	"taskdeck/internal/fetch"
	"taskdeck/internal/viewstack"
)

type boardState struct {
	col int
	row int
}

func (b *boardState) clamp(cols []board.Column) {
	if b.col >= len(cols) {
		b.col = len(cols) - 1
	}
	if b.col < 0 {
		b.col = 0
	}
	if len(cols) == 0 {
		b.row = 0
		return
	}
	if n := len(cols[b.col].Tasks); b.row >= n {
		b.row = n - 1
	}
	if b.row < 0 {
		b.row = 0
	}
}

func (m *Model) boardColumns() []board.Column {
	statuses, _ := m.app.Statuses.Cache().Get(fetch.StatusesKey())
	return board.Columns(statuses, m.allTasks())
}

func (m *Model) selectedBoardTask(cols []board.Column) (backend.Task, bool) {
	if m.board.col >= len(cols) {
		return backend.Task{}, false
	}
	tasks := cols[m.board.col].Tasks
	if m.board.row >= len(tasks) {
		return backend.Task{}, false
	}
	return tasks[m.board.row], true
}

func hoverIndex(cols []board.Column, id board.ColumnID) int {
	for i, c := range cols {
		if c.ID == id {
			return i
		}
	}
	return 0
}

func (m *Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.boardColumns()
	m.board.clamp(cols)
	eng := m.app.Board
	_, dragging := eng.Dragging()

	switch {
	case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Right):
		step := 1
		if key.Matches(msg, m.keys.Left) {
			step = -1
		}
		if dragging {
			hovered, _ := eng.Hovered()
			i := hoverIndex(cols, hovered) + step
			if i >= 0 && i < len(cols) {
				eng.Hover(cols[i].ID)
			}
			return m, nil
		}
		m.board.col += step
		m.board.clamp(cols)

	case key.Matches(msg, m.keys.Up):
		if !dragging && m.board.row > 0 {
			m.board.row--
		}

	case key.Matches(msg, m.keys.Down):
		if !dragging {
			m.board.row++
			m.board.clamp(cols)
		}

	case key.Matches(msg, m.keys.Drag):
		if dragging {
			eng.Cancel()
			return m, nil
		}
		task, ok := m.selectedBoardTask(cols)
		if !ok {
			return m, nil
		}
		if err := eng.BeginDrag(task.ID); err != nil {
			m.err = err
			return m, nil
		}
		eng.Hover(cols[m.board.col].ID)

	case key.Matches(msg, m.keys.Open):
		if dragging {
			return m, m.drop(cols)
		}
		if task, ok := m.selectedBoardTask(cols); ok {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindTask, EntityID: task.ID})
		}

	case key.Matches(msg, m.keys.Back):
		if dragging {
			eng.Cancel()
		}

	case key.Matches(msg, m.keys.Finish):
		if task, ok := m.selectedBoardTask(cols); ok && !dragging {
			return m, m.finish(task.ID)
		}

	case key.Matches(msg, m.keys.Add):
		if len(cols) > 0 {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindCreateTask, ParentContext: cols[m.board.col].ID})
		}
	}
	return m, nil
}

// drop applies the move to the cache now and confirms it in a command.
func (m *Model) drop(cols []board.Column) tea.Cmd {
	hovered, ok := m.app.Board.Hovered()
	if !ok {
		m.app.Board.Cancel()
		return nil
	}
	mv, err := m.app.Board.StartDrop(hovered)
	if err != nil {
		if !errors.Is(err, board.ErrNoDrag) {
			m.err = err
		}
		return nil
	}
	m.board.col = hoverIndex(cols, hovered)
	m.board.row = 0
	for i, t := range m.boardColumns()[m.board.col].Tasks {
		if t.ID == mv.TaskID {
			m.board.row = i
		}
	}
	if mv.Noop() {
		return nil
	}
	return m.confirm("move", mv)
}

func (m *Model) renderBoard() string {
	cols := m.boardColumns()
	if len(cols) == 0 {
		return "No columns"
	}
	dragID, dragging := m.app.Board.Dragging()
	hovered, hovering := m.app.Board.Hovered()

	width := (m.width - 1) / len(cols)
	if width < 12 {
		width = 12
	}
	height := m.height - 6
	if height < 3 {
		height = 3
	}

	rendered := make([]string, 0, len(cols))
	for ci, col := range cols {
		var b strings.Builder
		b.WriteString(m.st.columnTitle.Render(truncate(col.Name, width-4)))
		b.WriteString(m.st.muted.Render(" " + itoa(int64(len(col.Tasks)))))
		b.WriteString("\n")
		for ri, t := range col.Tasks {
			marker := "  "
			if ci == m.board.col && ri == m.board.row {
				marker = "> "
			}
			name := priorityStyle(t.PriorityID).Render("●") + " " + truncate(t.Name, width-8)
			switch {
			case dragging && t.ID == dragID:
				name = m.st.dragging.Render(name)
			case ci == m.board.col && ri == m.board.row:
				name = m.st.selected.Render(name)
			}
			b.WriteString(marker + name + "\n")
		}
		style := m.st.column
		if hovering && col.ID == hovered {
			style = m.st.hoverColumn
		}
		rendered = append(rendered, style.Width(width-2).Height(height).Render(b.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
