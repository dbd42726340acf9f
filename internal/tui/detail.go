package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskdeck/backend"
	"taskdeck/internal/app"
	"taskdeck/internal/board"
	"taskdeck/internal/fetch"
	"taskdeck/internal/filter"
	"taskdeck/internal/utils"
	"taskdeck/internal/viewstack"
)

// =============================================================================
// Loading
// =============================================================================

func (m *Model) loadFrame(f viewstack.Frame) tea.Cmd {
	fs := m.state(f)
	switch f.Kind {
	case viewstack.KindCreateTask, viewstack.KindCreateSubtask:
		fs.editing = true
		fs.input.Placeholder = "New task name..."
		if f.Kind == viewstack.KindCreateSubtask {
			fs.input.Placeholder = "New subtask name..."
		}
		fs.input.Focus()
		return textinput.Blink
	}

	fs.loading = true
	return m.reloadFrame(f)
}

// reloadFrame fetches the frame's data again without showing the spinner.
// Collections that are still fresh come straight from the cache.
func (m *Model) reloadFrame(f viewstack.Frame) tea.Cmd {
	switch f.Kind {
	case viewstack.KindCreateTask, viewstack.KindCreateSubtask:
		return nil
	}
	instance := f.Instance
	id := f.EntityID
	a := m.app
	return func() tea.Msg {
		msg := frameLoadedMsg{instance: instance}
		ctx := m.ctx
		switch f.Kind {
		case viewstack.KindTask:
			msg.err = fetch.LoadAll(ctx,
				func(ctx context.Context) (err error) { msg.subtasks, err = a.Subtasks(ctx, id); return err },
				func(ctx context.Context) (err error) { msg.chats, err = a.ChatList(ctx, id); return err },
			)
		case viewstack.KindSubtask:
			msg.chats, msg.err = a.ChatList(ctx, id)
		case viewstack.KindGroup:
			msg.err = fetch.LoadAll(ctx,
				func(ctx context.Context) (err error) { msg.group, err = a.Group(ctx, id); return err },
				func(ctx context.Context) (err error) {
					msg.tasks, err = a.TaskList(ctx, app.TaskScope{GroupID: id})
					return err
				},
			)
		case viewstack.KindCategory:
			msg.category, msg.tasks, msg.err = loadCategory(ctx, a, id)
		}
		return msg
	}
}

func loadCategory(ctx context.Context, a *app.App, id int64) (*backend.Category, []backend.Task, error) {
	categories, err := a.CategoryList(ctx, 0)
	if err != nil {
		return nil, nil, err
	}
	var category *backend.Category
	for i := range categories {
		if categories[i].ID == id {
			category = &categories[i]
		}
	}
	tasks, err := a.TaskList(ctx, app.TaskScope{})
	if err != nil {
		return category, nil, err
	}
	return category, filter.Apply(tasks, filter.Criteria{Categories: []int64{id}}), nil
}

func (m *Model) applyFrameData(msg frameLoadedMsg) {
	if !m.stack.Relevant(msg.instance) {
		utils.Debugf("tui: dropping result for closed view %s", msg.instance)
		return
	}
	fs := m.frames[msg.instance]
	if fs == nil {
		return
	}
	fs.loading = false
	fs.err = msg.err
	fs.subtasks = msg.subtasks
	fs.chats = msg.chats
	fs.group = msg.group
	fs.tasks = msg.tasks
	fs.category = msg.category
	if n := len(fs.items()); fs.cursor >= n {
		fs.cursor = max(n-1, 0)
	}
}

// frameKeys lists the task collections a frame's lists are built from.
func frameKeys(f viewstack.Frame) []string {
	switch f.Kind {
	case viewstack.KindTask:
		return []string{fetch.SubtasksKey(f.EntityID)}
	case viewstack.KindGroup:
		return []string{fetch.GroupTasksKey(f.EntityID)}
	case viewstack.KindCategory:
		return []string{fetch.TasksKey()}
	}
	return nil
}

// items is the navigable list of a frame.
func (fs *frameState) items() []backend.Task {
	if fs.tasks != nil {
		return fs.tasks
	}
	return fs.subtasks
}

// =============================================================================
// Keys
// =============================================================================

func (m *Model) handleFrameKey(f viewstack.Frame, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fs := m.state(f)

	switch f.Kind {
	case viewstack.KindCreateTask, viewstack.KindCreateSubtask:
		return m.handleFormKey(f, fs, msg)
	}
	if fs.editing && fs.input.Focused() {
		return m.handleEditKey(f, fs, msg)
	}
	if fs.confirmDelete {
		return m.handleConfirmDelete(f, fs, msg)
	}

	task, isTask := m.frameTask(f)
	items := fs.items()

	switch {
	case key.Matches(msg, m.keys.Back):
		return m, m.closeTop()
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if fs.cursor > 0 {
			fs.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if fs.cursor < len(items)-1 {
			fs.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if fs.cursor < len(items) {
			return m, m.open(taskDescriptor(items[fs.cursor]))
		}
	}
	if !isTask {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Edit):
		if !fs.editing {
			fs.editing = true
			fs.input.SetValue(task.Name)
			fs.input.CursorEnd()
		}
		fs.input.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Focus):
		if fs.editing {
			fs.input.Focus()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.AddSubtask):
		if f.Kind == viewstack.KindTask {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindCreateSubtask, EntityID: task.ID})
		}
		// a subtask gets a sibling form in its place
		nf, err := m.stack.Replace(viewstack.Descriptor{Kind: viewstack.KindCreateSubtask, EntityID: task.ParentTaskID})
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, m.loadFrame(nf)
	case key.Matches(msg, m.keys.Finish):
		return m, m.finish(task.ID)
	case key.Matches(msg, m.keys.Delete):
		fs.confirmDelete = true
	case key.Matches(msg, m.keys.Copy):
		name := task.Name
		return m, func() tea.Msg { return copiedMsg{text: name, err: m.copy(name)} }
	case key.Matches(msg, m.keys.Group):
		if task.GroupID != 0 {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindGroup, EntityID: task.GroupID})
		}
	case key.Matches(msg, m.keys.Category):
		if task.CategoryID != 0 {
			return m, m.open(viewstack.Descriptor{Kind: viewstack.KindCategory, EntityID: task.CategoryID})
		}
	}
	return m, nil
}

// frameTask returns the task a task or subtask frame shows.
func (m *Model) frameTask(f viewstack.Frame) (backend.Task, bool) {
	if f.Kind != viewstack.KindTask && f.Kind != viewstack.KindSubtask {
		return backend.Task{}, false
	}
	return m.findTask(f.EntityID)
}

func (m *Model) handleEditKey(f viewstack.Frame, fs *frameState, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		task, ok := m.frameTask(f)
		if !ok {
			fs.err = app.ErrUnknownTask
			return m, nil
		}
		task.Name = fs.input.Value()
		edit, err := m.app.StartUpdate(task)
		if err != nil {
			fs.err = err
			return m, nil
		}
		fs.err = nil
		fs.editing = false
		fs.input.Blur()
		return m, m.confirm("update", edit)
	case tea.KeyEsc:
		fs.editing = false
		fs.input.Blur()
		return m, nil
	case tea.KeyTab:
		// keep the draft, hand the keys back to the view
		fs.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	fs.input, cmd = fs.input.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmDelete(f viewstack.Frame, fs *frameState, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		fs.confirmDelete = false
		edit, err := m.app.StartDelete(f.EntityID)
		if err != nil {
			fs.err = err
			return m, nil
		}
		return m, tea.Batch(m.closeTop(), m.confirm("delete", edit))
	case "n", "N", "esc":
		fs.confirmDelete = false
	}
	return m, nil
}

func (m *Model) handleFormKey(f viewstack.Frame, fs *frameState, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, m.closeTop()
	case tea.KeyEnter:
		if fs.loading {
			return m, nil
		}
		name := fs.input.Value()
		if _, err := utils.ValidateTaskName(name); err != nil {
			fs.err = err
			return m, nil
		}
		fs.err = nil
		fs.loading = true
		return m, m.create(f, name)
	}

	var cmd tea.Cmd
	fs.input, cmd = fs.input.Update(msg)
	return m, cmd
}

// create builds the payload from the form's context and sends it.
func (m *Model) create(f viewstack.Frame, name string) tea.Cmd {
	instance := f.Instance
	if f.Kind == viewstack.KindCreateSubtask {
		in := backend.NewSubtask{Name: name, ParentTaskID: f.EntityID}
		if parent, ok := m.findTask(f.EntityID); ok {
			in.StatusID = parent.StatusID
			in.PriorityID = parent.PriorityID
		}
		return func() tea.Msg {
			return createdMsg{instance: instance, err: m.app.CreateSubtask(m.ctx, in)}
		}
	}

	in := backend.NewTask{Name: name}
	switch ctx := f.ParentContext.(type) {
	case time.Time:
		in.EndTime = ctx
	case board.ColumnID:
		in.StatusID = ctx.StatusID()
	}
	return func() tea.Msg {
		return createdMsg{instance: instance, err: m.app.CreateTask(m.ctx, in)}
	}
}

func (m *Model) handleCreated(msg createdMsg) tea.Cmd {
	relevant := m.stack.Relevant(msg.instance)
	if msg.err != nil {
		if fs := m.frames[msg.instance]; relevant && fs != nil {
			fs.loading = false
			fs.err = msg.err
		} else {
			m.err = msg.err
		}
		return nil
	}
	m.notice = "task created"
	cmds := []tea.Cmd{m.startLoading(m.loadBoard())}
	// the create invalidated the task collections, so the resumed parent
	// view reloads and shows the new subtask
	if top, ok := m.stack.Top(); ok && top.Instance == msg.instance {
		cmds = append(cmds, m.closeTop())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// Rendering
// =============================================================================

func (m *Model) dialogWidth() int {
	w := m.width * 2 / 3
	if w < 40 {
		w = min(40, m.width)
	}
	return w
}

func (m *Model) renderFrame(f viewstack.Frame) string {
	fs := m.state(f)
	width := m.dialogWidth() - 6

	var body string
	switch f.Kind {
	case viewstack.KindCreateTask, viewstack.KindCreateSubtask:
		body = m.renderForm(f, fs)
	case viewstack.KindGroup:
		body = m.renderGroup(fs, width)
	case viewstack.KindCategory:
		body = m.renderCategory(fs, width)
	default:
		body = m.renderTaskDetail(f, fs, width)
	}
	if fs.err != nil {
		body += "\n\n" + m.st.errorText.Render(truncate(fs.err.Error(), width))
	}
	return m.st.dialog.Width(m.dialogWidth()).Render(body)
}

func (m *Model) renderForm(f viewstack.Frame, fs *frameState) string {
	title := "Add New Task"
	switch ctx := f.ParentContext.(type) {
	case time.Time:
		title += " due " + ctx.Format("Mon 2 Jan")
	case board.ColumnID:
		title += " in " + m.statusName(ctx.StatusID())
	}
	if f.Kind == viewstack.KindCreateSubtask {
		title = "Add Subtask"
		if parent, ok := m.findTask(f.EntityID); ok {
			title += " to " + parent.Name
		}
	}
	hint := "Enter: confirm  Esc: cancel"
	if fs.loading {
		hint = m.spin.View() + " saving"
	}
	return m.st.title.Render(title) + "\n\n" + fs.input.View() + "\n\n" + m.st.muted.Render(hint)
}

func (m *Model) renderTaskDetail(f viewstack.Frame, fs *frameState, width int) string {
	task, ok := m.frameTask(f)
	if !ok {
		return m.st.muted.Render("Task " + itoa(f.EntityID) + " is not loaded")
	}

	var b strings.Builder
	if fs.editing {
		b.WriteString(fs.input.View())
		if !fs.input.Focused() {
			b.WriteString(m.st.muted.Render("  (draft)"))
		}
	} else {
		b.WriteString(m.st.title.Render(truncate(task.Name, width)))
	}
	b.WriteString("\n")
	meta := []string{
		"status: " + m.statusName(task.StatusID),
		"priority: " + priorityStyle(task.PriorityID).Render(m.priorityName(task.PriorityID)),
	}
	if !task.StartTime.IsZero() {
		meta = append(meta, "start: "+task.StartTime.Local().Format("2006-01-02 15:04"))
	}
	if !task.EndTime.IsZero() {
		meta = append(meta, "due: "+task.EndTime.Local().Format("2006-01-02 15:04"))
	}
	b.WriteString(m.st.muted.Render(strings.Join(meta, "  ")))

	if desc := renderMarkdown(task.Description, width); desc != "" {
		b.WriteString("\n\n" + desc)
	}

	if f.Kind == viewstack.KindTask {
		b.WriteString("\n\n" + m.st.columnTitle.Render("Subtasks"))
		b.WriteString(m.renderItems(fs, width, "No subtasks"))
	}
	if len(fs.chats) > 0 {
		b.WriteString("\n\n" + m.st.columnTitle.Render("Chats"))
		for _, c := range fs.chats {
			b.WriteString("\n  # " + truncate(c.Name, width-4))
		}
	}

	hint := "e: edit  f: finish  d: delete  y: copy  esc: close"
	if f.Kind == viewstack.KindTask {
		hint = "n: subtask  " + hint
	}
	switch {
	case fs.confirmDelete:
		hint = "Delete this task and its subtasks?  y: yes  n: no"
	case fs.editing && fs.input.Focused():
		hint = "Enter: save  Tab: keep draft  Esc: discard"
	}
	b.WriteString("\n\n" + m.st.muted.Render(hint))
	return b.String()
}

func (m *Model) renderItems(fs *frameState, width int, empty string) string {
	if fs.loading {
		return "\n" + m.spin.View() + " loading"
	}
	items := fs.items()
	if len(items) == 0 {
		return "\n" + m.st.muted.Render(empty)
	}
	var b strings.Builder
	for i, t := range items {
		cursor := "  "
		name := truncate(t.Name, width-16)
		if i == fs.cursor {
			cursor = "> "
			name = m.st.selected.Render(name)
		}
		b.WriteString("\n" + cursor + "[" + m.statusName(t.StatusID) + "] " + name)
	}
	return b.String()
}

func (m *Model) renderGroup(fs *frameState, width int) string {
	title := "Group"
	info := ""
	if fs.group != nil {
		title = fs.group.Name
		info = fs.group.Info
	}
	body := m.st.title.Render(truncate(title, width))
	if info != "" {
		body += "\n" + m.st.muted.Render(truncate(info, width))
	}
	return body + "\n" + m.renderItems(fs, width, "No tasks in this group") +
		"\n\n" + m.st.muted.Render("enter: open  esc: close")
}

func (m *Model) renderCategory(fs *frameState, width int) string {
	title := "Category"
	desc := ""
	if fs.category != nil {
		title = fs.category.Name
		desc = fs.category.Description
	}
	body := m.st.title.Render(truncate(title, width))
	if desc != "" {
		body += "\n" + m.st.muted.Render(truncate(desc, width))
	}
	return body + "\n" + m.renderItems(fs, width, "No tasks in this category") +
		"\n\n" + m.st.muted.Render("enter: open  esc: close")
}
