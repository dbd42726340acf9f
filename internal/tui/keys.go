package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keybindings for the application
type KeyMap struct {
	// Navigation
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding

	// Screens
	BoardScreen    key.Binding
	CalendarScreen key.Binding
	ListScreen     key.Binding

	// Board
	Drag   key.Binding
	Finish key.Binding

	// Calendar
	PrevMonth key.Binding
	NextMonth key.Binding

	// Tasks
	Open       key.Binding
	Add        key.Binding
	AddSubtask key.Binding
	Edit       key.Binding
	Delete     key.Binding
	Copy       key.Binding
	Group      key.Binding
	Category   key.Binding

	// List filters
	Personal     key.Binding
	Timeless     key.Binding
	PriorityNext key.Binding
	ClearFilter  key.Binding

	// General
	Refetch key.Binding
	Focus   key.Binding
	Back    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "right"),
		),

		BoardScreen: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "board"),
		),
		CalendarScreen: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "calendar"),
		),
		ListScreen: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "list"),
		),

		Drag: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "drag"),
		),
		Finish: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "finish"),
		),

		PrevMonth: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "prev month"),
		),
		NextMonth: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next month"),
		),

		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		AddSubtask: key.NewBinding(
			key.WithKeys("s", "n"),
			key.WithHelp("s/n", "subtask"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy"),
		),
		Group: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "group"),
		),
		Category: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "category"),
		),

		Personal: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "personal"),
		),
		Timeless: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "timeless"),
		),
		PriorityNext: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "priority"),
		),
		ClearFilter: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear filters"),
		),

		Refetch: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refetch"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "focus input"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.BoardScreen, k.CalendarScreen, k.ListScreen, k.Open, k.Refetch, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.BoardScreen, k.CalendarScreen, k.ListScreen},
		{k.Drag, k.Finish, k.PrevMonth, k.NextMonth},
		{k.Open, k.Add, k.AddSubtask, k.Edit, k.Delete, k.Copy},
		{k.Group, k.Category, k.Personal, k.Timeless, k.PriorityNext, k.ClearFilter},
		{k.Refetch, k.Focus, k.Back, k.Help, k.Quit},
	}
}
