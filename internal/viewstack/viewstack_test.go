package viewstack

import (
	"errors"
	"math/rand"
	"testing"
)

func task(id int64) Descriptor    { return Descriptor{Kind: KindTask, EntityID: id} }
func subtask(id int64) Descriptor { return Descriptor{Kind: KindSubtask, EntityID: id} }

// =============================================================================
// Open / Close
// =============================================================================

func TestCloseEmptyStack(t *testing.T) {
	c := New()
	if _, err := c.Close(); !errors.Is(err, ErrEmptyStack) {
		t.Errorf("err = %v, want ErrEmptyStack", err)
	}
	if _, err := c.Replace(task(1)); !errors.Is(err, ErrEmptyStack) {
		t.Errorf("Replace err = %v, want ErrEmptyStack", err)
	}
}

func TestOpenSuspendsAndCloseResumes(t *testing.T) {
	c := New()
	parent, err := c.Open(task(10))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// the renderer keys per-view state (edit mode) by instance
	editing := map[string]bool{parent.Instance: true}

	if _, err := c.Open(subtask(11)); err != nil {
		t.Fatalf("Open subtask: %v", err)
	}
	frames := c.Frames()
	if frames[0].State != Suspended || frames[1].State != Active {
		t.Fatalf("states = %v/%v, want suspended/active", frames[0].State, frames[1].State)
	}

	if _, err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	top, ok := c.Top()
	if !ok {
		t.Fatal("expected parent on top")
	}
	if top.Instance != parent.Instance || top.EntityID != 10 || top.State != Active {
		t.Errorf("top = %+v, want resumed task 10", top)
	}
	if !editing[top.Instance] {
		t.Errorf("parent edit state lost across open/close")
	}
}

func TestDuplicateViewRejected(t *testing.T) {
	c := New()
	_, _ = c.Open(task(1))
	_, _ = c.Open(subtask(2))

	if _, err := c.Open(task(1)); !errors.Is(err, ErrDuplicateView) {
		t.Errorf("err = %v, want ErrDuplicateView", err)
	}
	if c.Depth() != 2 {
		t.Errorf("depth = %d, stack must be unchanged", c.Depth())
	}
	if top, _ := c.Top(); top.State != Active || top.EntityID != 2 {
		t.Errorf("top changed on rejected open: %+v", top)
	}

	// Same id with a different kind is allowed.
	if _, err := c.Open(Descriptor{Kind: KindGroup, EntityID: 1}); err != nil {
		t.Errorf("different kind should open: %v", err)
	}
}

// =============================================================================
// Replace / detached frames
// =============================================================================

func TestReplaceEmitsOneEvent(t *testing.T) {
	c := New()
	_, _ = c.Open(task(1))

	var events []Event
	c.Observe(func(ev Event) { events = append(events, ev) })

	f, err := c.Replace(subtask(2))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventReplaced {
		t.Fatalf("events = %+v, want one replaced event", events)
	}
	if len(events[0].Closed) != 1 || events[0].Closed[0].EntityID != 1 {
		t.Errorf("closed = %+v", events[0].Closed)
	}
	if events[0].Top == nil || events[0].Top.Instance != f.Instance {
		t.Errorf("event top = %+v, want new frame", events[0].Top)
	}
	if c.Depth() != 1 {
		t.Errorf("depth = %d, want 1", c.Depth())
	}
}

func TestReplaceAllowsSameViewAtTop(t *testing.T) {
	c := New()
	_, _ = c.Open(task(1))
	f, err := c.Replace(task(1))
	if err != nil {
		t.Fatalf("Replace same view: %v", err)
	}
	if f.Instance == "" {
		t.Errorf("expected a fresh instance")
	}
}

func TestOpenDetachedReturnsToDepth(t *testing.T) {
	c := New()
	_, _ = c.Open(task(1))
	_, _ = c.Open(subtask(2))
	_, _ = c.Open(subtask(3))

	if _, err := c.OpenDetached(Descriptor{Kind: KindCreateSubtask, EntityID: 1}, 1); err != nil {
		t.Fatalf("OpenDetached: %v", err)
	}
	// A replaced frame keeps the return depth.
	if _, err := c.Replace(subtask(4)); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	var closed []Frame
	c.Observe(func(ev Event) { closed = ev.Closed })
	if _, err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", c.Depth())
	}
	if len(closed) != 3 {
		t.Errorf("closed %d frames, want 3", len(closed))
	}
	if top, _ := c.Top(); top.EntityID != 1 || top.State != Active {
		t.Errorf("top = %+v", top)
	}
}

func TestOpenDetachedInvalidReturn(t *testing.T) {
	c := New()
	_, _ = c.Open(task(1))
	for _, depth := range []int{-1, 2} {
		if _, err := c.OpenDetached(task(2), depth); !errors.Is(err, ErrInvalidReturn) {
			t.Errorf("depth %d: err = %v, want ErrInvalidReturn", depth, err)
		}
	}
	if c.Depth() != 1 {
		t.Errorf("depth = %d, stack must be unchanged", c.Depth())
	}
}

func TestRelevantAndReset(t *testing.T) {
	c := New()
	a, _ := c.Open(task(1))
	b, _ := c.Open(subtask(2))
	_, _ = c.Close()

	if !c.Relevant(a.Instance) {
		t.Errorf("open frame should be relevant")
	}
	if c.Relevant(b.Instance) {
		t.Errorf("closed frame should not be relevant")
	}

	c.Reset()
	if c.Depth() != 0 || c.Relevant(a.Instance) {
		t.Errorf("reset left frames behind")
	}
	// reopening the same entity is a new instance
	again, _ := c.Open(task(1))
	if again.Instance == a.Instance {
		t.Errorf("reopened frame reused instance id")
	}
}

// =============================================================================
// Random sequences
// =============================================================================

func TestRandomSequencesStayDuplicateFree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := New()

	for step := 0; step < 2000; step++ {
		d := Descriptor{Kind: Kind(rng.Intn(6)), EntityID: int64(rng.Intn(4))}
		switch rng.Intn(4) {
		case 0, 1:
			_, _ = c.Open(d)
		case 2:
			_, _ = c.Close()
		case 3:
			_, _ = c.Replace(d)
		}

		seen := make(map[Descriptor]bool)
		frames := c.Frames()
		for i, f := range frames {
			key := Descriptor{Kind: f.Kind, EntityID: f.EntityID}
			if seen[key] {
				t.Fatalf("step %d: duplicate frame %s", step, key)
			}
			seen[key] = true
			want := Suspended
			if i == len(frames)-1 {
				want = Active
			}
			if f.State != want {
				t.Fatalf("step %d: frame %d state %s, want %s", step, i, f.State, want)
			}
		}
	}
}
