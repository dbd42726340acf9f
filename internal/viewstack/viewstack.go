// Package viewstack keeps the stack of open detail views.
//
// One Controller replaces the per-modal boolean flags a screen would
// otherwise carry. Each open view is a Frame with its own instance id, so
// view state and late fetch results can be tied to one specific opening.
package viewstack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind is the type of detail view.
type Kind int

const (
	KindTask Kind = iota
	KindSubtask
	KindCreateTask
	KindCreateSubtask
	KindGroup
	KindCategory
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindSubtask:
		return "subtask"
	case KindCreateTask:
		return "createTask"
	case KindCreateSubtask:
		return "createSubtask"
	case KindGroup:
		return "group"
	case KindCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Descriptor says what a view shows. ParentContext carries the parent task id
// for subtask views, or a preset such as a calendar date for create views.
type Descriptor struct {
	Kind          Kind
	EntityID      int64
	ParentContext any
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%d", d.Kind, d.EntityID)
}

// State of a frame on the stack.
type State int

const (
	Active State = iota
	Suspended
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "suspended"
}

// noReturn marks a frame that closes normally.
const noReturn = -1

// Frame is one opening of a view.
type Frame struct {
	Descriptor
	Instance string
	State    State
	// ReturnTo is the depth the stack truncates to when this frame closes,
	// or -1 for a plain pop.
	ReturnTo int
}

var (
	ErrEmptyStack    = errors.New("view stack is empty")
	ErrDuplicateView = errors.New("view already open")
	ErrInvalidReturn = errors.New("return depth out of range")
)

// EventType describes a stack transition.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventReplaced
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventReplaced:
		return "replaced"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after each transition.
// Frame is the opened frame for open/replace; Closed lists every frame removed.
type Event struct {
	Type   EventType
	Frame  *Frame
	Closed []Frame
	Top    *Frame
	Depth  int
}

// Controller owns the stack. It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	frames    []Frame
	observers []func(Event)
	newID     func() string
}

// New creates an empty controller.
func New() *Controller {
	return &Controller{newID: func() string { return uuid.New().String() }}
}

// Observe registers fn for every transition.
func (c *Controller) Observe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Open pushes d and suspends the previous top.
func (c *Controller) Open(d Descriptor) (Frame, error) {
	return c.push(d, noReturn)
}

// OpenDetached pushes d so that closing it truncates the stack to returnTo.
func (c *Controller) OpenDetached(d Descriptor, returnTo int) (Frame, error) {
	if returnTo < 0 {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidReturn, returnTo)
	}
	return c.push(d, returnTo)
}

func (c *Controller) push(d Descriptor, returnTo int) (Frame, error) {
	c.mu.Lock()
	if returnTo > len(c.frames) {
		depth := len(c.frames)
		c.mu.Unlock()
		return Frame{}, fmt.Errorf("%w: %d (depth %d)", ErrInvalidReturn, returnTo, depth)
	}
	if c.indexLocked(d, -1) >= 0 {
		c.mu.Unlock()
		return Frame{}, fmt.Errorf("%w: %s", ErrDuplicateView, d)
	}
	if n := len(c.frames); n > 0 {
		c.frames[n-1].State = Suspended
	}
	f := Frame{Descriptor: d, Instance: c.newID(), State: Active, ReturnTo: returnTo}
	c.frames = append(c.frames, f)
	ev := c.eventLocked(EventOpened, &f, nil)
	obs := c.observersLocked()
	c.mu.Unlock()

	dispatch(obs, ev)
	return f, nil
}

// Close pops the top frame and resumes the one below it. A frame opened with
// a return depth truncates the stack to that depth.
func (c *Controller) Close() (Frame, error) {
	c.mu.Lock()
	n := len(c.frames)
	if n == 0 {
		c.mu.Unlock()
		return Frame{}, ErrEmptyStack
	}
	top := c.frames[n-1]
	keep := n - 1
	if top.ReturnTo != noReturn && top.ReturnTo < keep {
		keep = top.ReturnTo
	}
	closed := make([]Frame, 0, n-keep)
	for i := n - 1; i >= keep; i-- {
		closed = append(closed, c.frames[i])
	}
	c.frames = c.frames[:keep]
	if keep > 0 {
		c.frames[keep-1].State = Active
	}
	ev := c.eventLocked(EventClosed, nil, closed)
	obs := c.observersLocked()
	c.mu.Unlock()

	dispatch(obs, ev)
	return top, nil
}

// Replace swaps the top frame for d in a single transition. The new frame
// keeps the replaced frame's return depth.
func (c *Controller) Replace(d Descriptor) (Frame, error) {
	c.mu.Lock()
	n := len(c.frames)
	if n == 0 {
		c.mu.Unlock()
		return Frame{}, ErrEmptyStack
	}
	if c.indexLocked(d, n-1) >= 0 {
		c.mu.Unlock()
		return Frame{}, fmt.Errorf("%w: %s", ErrDuplicateView, d)
	}
	old := c.frames[n-1]
	f := Frame{Descriptor: d, Instance: c.newID(), State: Active, ReturnTo: old.ReturnTo}
	c.frames[n-1] = f
	ev := c.eventLocked(EventReplaced, &f, []Frame{old})
	obs := c.observersLocked()
	c.mu.Unlock()

	dispatch(obs, ev)
	return f, nil
}

// Reset closes every frame.
func (c *Controller) Reset() {
	c.mu.Lock()
	if len(c.frames) == 0 {
		c.mu.Unlock()
		return
	}
	closed := make([]Frame, 0, len(c.frames))
	for i := len(c.frames) - 1; i >= 0; i-- {
		closed = append(closed, c.frames[i])
	}
	c.frames = nil
	ev := c.eventLocked(EventReset, nil, closed)
	obs := c.observersLocked()
	c.mu.Unlock()

	dispatch(obs, ev)
}

// Top returns the active frame.
func (c *Controller) Top() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Frames returns the stack bottom first.
func (c *Controller) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Depth returns the number of open frames.
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Relevant reports whether the frame with the given instance id is still open.
func (c *Controller) Relevant(instance string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if f.Instance == instance {
			return true
		}
	}
	return false
}

func (c *Controller) indexLocked(d Descriptor, skip int) int {
	for i, f := range c.frames {
		if i != skip && f.Kind == d.Kind && f.EntityID == d.EntityID {
			return i
		}
	}
	return -1
}

func (c *Controller) eventLocked(t EventType, f *Frame, closed []Frame) Event {
	ev := Event{Type: t, Frame: f, Closed: closed, Depth: len(c.frames)}
	if n := len(c.frames); n > 0 {
		top := c.frames[n-1]
		ev.Top = &top
	}
	return ev
}

func (c *Controller) observersLocked() []func(Event) {
	obs := make([]func(Event), len(c.observers))
	copy(obs, c.observers)
	return obs
}

func dispatch(obs []func(Event), ev Event) {
	for _, fn := range obs {
		fn(ev)
	}
}
