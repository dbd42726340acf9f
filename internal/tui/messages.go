package tui

import (
	"taskdeck/backend"
)

// RefreshMsg tells the model another process may have raised the refresh
// signal. The file watcher sends it.
type RefreshMsg struct{}

type loadedMsg struct {
	err error
}

// cacheMsg lists the cache keys changed since the previous one.
type cacheMsg struct {
	keys []string
}

// frameLoadedMsg is the data behind a detail frame. It is dropped when the
// frame has closed by the time it arrives.
type frameLoadedMsg struct {
	instance string
	subtasks []backend.Task
	chats    []backend.Chat
	group    *backend.Group
	tasks    []backend.Task
	category *backend.Category
	err      error
}

// mutationMsg reports the end of a server call behind an optimistic change.
type mutationMsg struct {
	op  string
	err error
}

// createdMsg reports a create form's result.
type createdMsg struct {
	instance string
	err      error
}

type copiedMsg struct {
	text string
	err  error
}
