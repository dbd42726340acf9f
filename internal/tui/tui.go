// Package tui provides the terminal interface: a kanban board, a month
// calendar and a task list, with detail views stacked on top.
package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"taskdeck/backend"
	"taskdeck/internal/app"
	"taskdeck/internal/cache"
	"taskdeck/internal/fetch"
	"taskdeck/internal/utils"
	"taskdeck/internal/viewstack"
)

// Screen is one of the top-level tabs.
type Screen int

const (
	ScreenBoard Screen = iota
	ScreenCalendar
	ScreenList
)

var screenNames = []string{"Board", "Calendar", "List"}

func (s Screen) String() string {
	if int(s) < len(screenNames) {
		return screenNames[s]
	}
	return "unknown"
}

// ParseScreen maps a config value to a screen, defaulting to the board.
func ParseScreen(name string) Screen {
	switch strings.ToLower(name) {
	case "calendar":
		return ScreenCalendar
	case "list":
		return ScreenList
	default:
		return ScreenBoard
	}
}

// Options configures the model. Zero values are usable.
type Options struct {
	Start     Screen
	Now       func() time.Time
	Clipboard func(string) error
}

// frameState is the per-instance state of a detail view. It survives while
// the frame is suspended under another one.
type frameState struct {
	input         textinput.Model
	editing       bool
	confirmDelete bool
	cursor        int
	loading       bool
	err           error

	subtasks []backend.Task
	chats    []backend.Chat
	group    *backend.Group
	tasks    []backend.Task
	category *backend.Category

	// dirty is set when a collection behind the frame changed while it
	// was suspended.
	dirty bool
}

// Model represents the TUI state
type Model struct {
	app  *app.App
	ctx  context.Context
	keys KeyMap
	help help.Model
	spin spinner.Model
	st   styles
	now  func() time.Time
	copy func(string) error

	stack  *viewstack.Controller
	frames map[string]*frameState
	unsubs []func()

	// Cache events are coalesced: changed holds the keys seen since the
	// last cacheMsg and wake carries at most one pending wakeup.
	changedMu sync.Mutex
	changed   map[string]struct{}
	wake      chan struct{}

	screen  Screen
	loading bool
	err     error
	notice  string

	width  int
	height int

	board boardState
	cal   calendarState
	list  listState
}

// New creates the model for a session. Call Close when the program exits.
func New(a *app.App, opts Options) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		app:     a,
		ctx:     context.Background(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spin:    sp,
		st:      defaultStyles(),
		now:     opts.Now,
		copy:    opts.Clipboard,
		stack:   viewstack.New(),
		frames:  make(map[string]*frameState),
		changed: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		screen:  opts.Start,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.copy == nil {
		m.copy = clipboard.WriteAll
	}
	m.cal = newCalendarState(m.now())
	m.stack.Observe(m.onStackEvent)

	forward := func(ev cache.Event) {
		m.changedMu.Lock()
		m.changed[ev.Key] = struct{}{}
		m.changedMu.Unlock()
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	m.unsubs = append(m.unsubs,
		a.Tasks.Cache().Subscribe("", forward),
		a.Statuses.Cache().Subscribe("", forward),
		a.Priorities.Cache().Subscribe("", forward),
	)
	return m
}

// Close stops listening to the caches.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

// Stack returns the view stack.
func (m *Model) Stack() *viewstack.Controller { return m.stack }

// Screen returns the active tab.
func (m *Model) Screen() Screen { return m.screen }

// Err returns the error shown in the status bar, if any.
func (m *Model) Err() error { return m.err }

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spin.Tick, m.waitForEvent(), m.refetch())
}

// waitForEvent delivers every key changed since the previous cacheMsg in
// one message.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		<-m.wake
		m.changedMu.Lock()
		defer m.changedMu.Unlock()
		msg := cacheMsg{keys: make([]string, 0, len(m.changed))}
		for k := range m.changed {
			msg.keys = append(msg.keys, k)
		}
		clear(m.changed)
		return msg
	}
}

// refetch reloads the board collections even when fresh, so restored
// snapshots are replaced by server data.
func (m *Model) refetch() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.app.Refetch(m.ctx)}
	}
}

func (m *Model) loadBoard() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.app.LoadBoard(m.ctx)}
	}
}

func (m *Model) consumeRefresh() tea.Cmd {
	return func() tea.Msg {
		due, err := m.app.ConsumeRefresh(m.ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		if !due {
			return nil
		}
		return loadedMsg{err: m.app.LoadBoard(m.ctx)}
	}
}

func (m *Model) startLoading(cmd tea.Cmd) tea.Cmd {
	if m.loading {
		return cmd
	}
	m.loading = true
	return tea.Batch(m.spin.Tick, cmd)
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case cacheMsg:
		m.board.clamp(m.boardColumns())
		return m, tea.Batch(m.waitForEvent(), m.framesChanged(msg.keys))

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case RefreshMsg:
		return m, m.consumeRefresh()

	case frameLoadedMsg:
		m.applyFrameData(msg)
		return m, nil

	case mutationMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.notice = msg.op + " saved"
		return m, nil

	case createdMsg:
		return m, m.handleCreated(msg)

	case copiedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = "copied " + msg.text
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	m.err = nil
	m.notice = ""

	if top, ok := m.stack.Top(); ok {
		return m.handleFrameKey(top, msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refetch):
		return m, m.startLoading(m.refetch())
	case key.Matches(msg, m.keys.BoardScreen):
		m.switchScreen(ScreenBoard)
		return m, nil
	case key.Matches(msg, m.keys.CalendarScreen):
		m.switchScreen(ScreenCalendar)
		return m, nil
	case key.Matches(msg, m.keys.ListScreen):
		m.switchScreen(ScreenList)
		return m, nil
	}

	switch m.screen {
	case ScreenCalendar:
		return m.handleCalendarKey(msg)
	case ScreenList:
		return m.handleListKey(msg)
	default:
		return m.handleBoardKey(msg)
	}
}

func (m *Model) switchScreen(s Screen) {
	if _, dragging := m.app.Board.Dragging(); dragging {
		m.app.Board.Cancel()
	}
	m.cal.popover = nil
	m.screen = s
}

// =============================================================================
// View stack
// =============================================================================

func (m *Model) onStackEvent(ev viewstack.Event) {
	for _, f := range ev.Closed {
		delete(m.frames, f.Instance)
	}
	if ev.Frame != nil && (ev.Type == viewstack.EventOpened || ev.Type == viewstack.EventReplaced) {
		m.frames[ev.Frame.Instance] = newFrameState()
	}
	utils.Debugf("tui: %s depth=%d", ev.Type, ev.Depth)
}

func newFrameState() *frameState {
	ti := textinput.New()
	ti.Placeholder = "Task name..."
	ti.CharLimit = utils.MaxTaskNameLength
	return &frameState{input: ti}
}

func (m *Model) state(f viewstack.Frame) *frameState {
	fs, ok := m.frames[f.Instance]
	if !ok {
		fs = newFrameState()
		m.frames[f.Instance] = fs
	}
	return fs
}

func (m *Model) open(d viewstack.Descriptor) tea.Cmd {
	f, err := m.stack.Open(d)
	if err != nil {
		m.err = err
		return nil
	}
	return m.loadFrame(f)
}

func (m *Model) openDetached(d viewstack.Descriptor, returnTo int) tea.Cmd {
	f, err := m.stack.OpenDetached(d, returnTo)
	if err != nil {
		m.err = err
		return nil
	}
	return m.loadFrame(f)
}

// closeTop closes the top frame and reloads the resumed one when its data
// changed or went stale while it was suspended.
func (m *Model) closeTop() tea.Cmd {
	if _, err := m.stack.Close(); err != nil {
		m.err = err
		return nil
	}
	top, ok := m.stack.Top()
	if !ok {
		return nil
	}
	fs := m.state(top)
	stale := fs.dirty
	for _, key := range frameKeys(top) {
		if m.app.Tasks.Stale(key, m.app.TTL()) {
			stale = true
		}
	}
	if !stale {
		return nil
	}
	fs.dirty = false
	return m.reloadFrame(top)
}

// framesChanged refreshes the visible frame if keys touch its data and marks
// suspended frames for a reload on resume.
func (m *Model) framesChanged(keys []string) tea.Cmd {
	if len(keys) == 0 {
		return nil
	}
	changed := make(map[string]bool, len(keys))
	for _, k := range keys {
		changed[k] = true
	}
	var cmd tea.Cmd
	for _, f := range m.stack.Frames() {
		touched := false
		for _, k := range frameKeys(f) {
			touched = touched || changed[k]
		}
		if !touched {
			continue
		}
		if f.State == viewstack.Active {
			cmd = m.reloadFrame(f)
			continue
		}
		m.state(f).dirty = true
	}
	return cmd
}

// findTask looks a task up in every cached task collection.
func (m *Model) findTask(id int64) (backend.Task, bool) {
	c := m.app.Tasks.Cache()
	if t, ok := c.Find(fetch.TasksKey(), id); ok {
		return t, true
	}
	for _, key := range c.Keys() {
		if t, ok := c.Find(key, id); ok {
			return t, true
		}
	}
	return backend.Task{}, false
}

func (m *Model) allTasks() []backend.Task {
	tasks, _ := m.app.Tasks.Cache().Get(fetch.TasksKey())
	return tasks
}

func (m *Model) statusName(id int64) string {
	statuses, _ := m.app.Statuses.Cache().Get(fetch.StatusesKey())
	for _, s := range statuses {
		if s.ID == id {
			return s.Name
		}
	}
	return "No Status"
}

func (m *Model) priorityName(id int64) string {
	priorities, _ := m.app.Priorities.Cache().Get(fetch.PrioritiesKey())
	for _, p := range priorities {
		if p.ID == id {
			return p.Name
		}
	}
	return "-"
}

func (m *Model) finish(taskID int64) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{op: "finish", err: m.app.Board.Finish(m.ctx, taskID)}
	}
}

// confirmer is a pending optimistic change: *board.Move or *app.Edit.
type confirmer interface {
	Confirm(ctx context.Context) error
}

// confirm runs the server half of an optimistic change off the event loop.
func (m *Model) confirm(op string, c confirmer) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{op: op, err: c.Confirm(m.ctx)}
	}
}

// =============================================================================
// Rendering
// =============================================================================

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	var body string
	switch m.screen {
	case ScreenCalendar:
		body = m.renderCalendar()
	case ScreenList:
		body = m.renderList()
	default:
		body = m.renderBoard()
	}

	view := lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), body)
	if top, ok := m.stack.Top(); ok {
		view = m.centerOverlay(view, m.renderFrame(top))
	}
	return view + "\n" + m.renderStatusBar()
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, len(screenNames)+1)
	for i, name := range screenNames {
		label := itoa(int64(i+1)) + " " + name
		if Screen(i) == m.screen {
			tabs = append(tabs, m.st.activeTab.Render(label))
		} else {
			tabs = append(tabs, m.st.tab.Render(label))
		}
	}
	if m.loading {
		tabs = append(tabs, m.spin.View()+" loading")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderStatusBar() string {
	left := ""
	switch {
	case m.err != nil:
		left = m.st.errorText.Render("error: " + m.err.Error())
	case m.notice != "":
		left = m.notice
	}
	if d := m.stack.Depth(); d > 0 {
		left = strings.TrimSpace(left + "  views:" + itoa(int64(d)))
	}
	bar := m.st.statusBar.Width(m.width).Render(left)
	return bar + "\n" + m.help.View(m.keys)
}

// centerOverlay draws dialog over the middle of base.
func (m *Model) centerOverlay(base, dialog string) string {
	w := lipgloss.Width(dialog)
	h := lipgloss.Height(dialog)
	x := (m.width - w) / 2
	y := (m.height - h) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return overlay(base, dialog, x, y)
}

// overlay replaces the cells of base under box, keeping what is left and
// right of it on each line.
func overlay(base, box string, x, y int) string {
	lines := strings.Split(base, "\n")
	for i, boxLine := range strings.Split(box, "\n") {
		row := y + i
		for len(lines) <= row {
			lines = append(lines, "")
		}
		line := lines[row]
		if w := ansi.StringWidth(line); w < x {
			line += strings.Repeat(" ", x-w)
		}
		left := ansi.Truncate(line, x, "")
		right := ansi.TruncateLeft(line, x+ansi.StringWidth(boxLine), "")
		lines[row] = left + boxLine + right
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}
