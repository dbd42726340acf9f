package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	column      lipgloss.Style
	hoverColumn lipgloss.Style
	columnTitle lipgloss.Style
	selected    lipgloss.Style
	dragging    lipgloss.Style
	subtask     lipgloss.Style
	muted       lipgloss.Style
	cell        lipgloss.Style
	outsideCell lipgloss.Style
	cursorCell  lipgloss.Style
	dialog      lipgloss.Style
	popover     lipgloss.Style
	tab         lipgloss.Style
	activeTab   lipgloss.Style
	statusBar   lipgloss.Style
	errorText   lipgloss.Style
	title       lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		column: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		hoverColumn: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(0, 1),
		columnTitle: lipgloss.NewStyle().
			Bold(true),
		selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		dragging: lipgloss.NewStyle().
			Reverse(true),
		subtask: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		cell: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, true, false).
			BorderForeground(lipgloss.Color("238")),
		outsideCell: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, true, false).
			BorderForeground(lipgloss.Color("238")).
			Foreground(lipgloss.Color("240")),
		cursorCell: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, true, false).
			BorderForeground(lipgloss.Color("212")),
		dialog: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		popover: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")),
		tab: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245")),
		activeTab: lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Underline(true),
		statusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),
	}
}

// priorityColors follows the server's seed data: 1 high, 2 medium, 3 normal, 4 low.
var priorityColors = map[int64]lipgloss.Color{
	1: lipgloss.Color("#e74c3c"),
	2: lipgloss.Color("#f39c12"),
	3: lipgloss.Color("#3498db"),
	4: lipgloss.Color("#95a5a6"),
}

func priorityStyle(id int64) lipgloss.Style {
	c, ok := priorityColors[id]
	if !ok {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(c)
}
