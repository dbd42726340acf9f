// Package cache holds entity collections keyed by fetch key and supports
// optimistic mutation with commit/rollback.
//
// At most one mutation per (key, entity) is applied at a time. Later writes to
// the same entity queue behind it and are applied, in issue order, once the
// earlier one commits or rolls back.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Entity is anything with a stable integer identity.
type Entity interface {
	EntityID() int64
}

// EventType describes what happened to a key.
type EventType int

const (
	EventReplaced EventType = iota
	EventApplied
	EventCommitted
	EventRolledBack
	EventRemoved
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventReplaced:
		return "replaced"
	case EventApplied:
		return "applied"
	case EventCommitted:
		return "committed"
	case EventRolledBack:
		return "rolled-back"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after each state change.
type Event struct {
	Key      string
	Type     EventType
	EntityID int64
	HandleID string
}

var (
	// ErrUnknownHandle is returned for handles this cache did not issue or already forgot.
	ErrUnknownHandle = errors.New("unknown mutation handle")
	// ErrResolved is returned when a handle is committed or rolled back twice.
	ErrResolved = errors.New("mutation already resolved")
	// ErrNotApplied is returned when committing a mutation still queued behind another.
	ErrNotApplied = errors.New("mutation not applied yet")
	// ErrWithdrawn is returned by Handle.Wait when a queued mutation was rolled back before it applied.
	ErrWithdrawn = errors.New("mutation withdrawn before apply")
)

type handleState int

const (
	stateQueued handleState = iota
	stateApplied
	stateCommitted
	stateRolledBack
)

// Handle identifies one optimistic mutation.
type Handle struct {
	id        string
	key       string
	entityID  int64
	ready     chan struct{}
	withdrawn atomic.Bool
	state     handleState // guarded by the owning cache's mutex
}

// ID returns the unique handle id.
func (h *Handle) ID() string { return h.id }

// Key returns the collection key the mutation targets.
func (h *Handle) Key() string { return h.key }

// EntityID returns the entity the mutation targets.
func (h *Handle) EntityID() int64 { return h.entityID }

// Ready is closed once the mutation has been applied to the cache (or withdrawn).
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Wait blocks until the mutation is applied.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ready:
		if h.withdrawn.Load() {
			return ErrWithdrawn
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mutation[T Entity] struct {
	handle         *Handle
	fn             func([]T) []T
	snapshot       []T
	priorPresent   bool
	hadPrior       bool
	prior          T
	priorIndex     int
	appliedVersion uint64
}

type entry[T Entity] struct {
	items     []T
	version   uint64
	updatedAt time.Time
}

type pendingKey struct {
	key string
	id  int64
}

type subscriber struct {
	id  int
	key string
	fn  func(Event)
}

// Cache stores collections of T by key.
type Cache[T Entity] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	queues  map[pendingKey][]*mutation[T]
	pending map[*Handle]*mutation[T]
	subs    []subscriber
	nextSub int
	now     func() time.Time
}

// New creates an empty cache.
func New[T Entity]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]*entry[T]),
		queues:  make(map[pendingKey][]*mutation[T]),
		pending: make(map[*Handle]*mutation[T]),
		now:     time.Now,
	}
}

// Get returns a copy of the collection stored under key.
func (c *Cache[T]) Get(key string) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return clone(e.items), true
}

// Find returns a single entity from the collection under key.
func (c *Cache[T]) Find(key string, id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if i := indexOf(e.items, id); i >= 0 {
		return e.items[i], true
	}
	return zero, false
}

// UpdatedAt returns when key was last replaced with server data.
func (c *Cache[T]) UpdatedAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.updatedAt.IsZero() {
		return time.Time{}, false
	}
	return e.updatedAt, true
}

// Keys returns the stored keys in sorted order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pending returns the number of unresolved mutations (applied or queued) for an entity.
func (c *Cache[T]) Pending(key string, id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[pendingKey{key, id}])
}

// Replace stores a server-authoritative collection. Applied mutations that are
// still unresolved are re-applied on top of it, in apply order.
func (c *Cache[T]) Replace(key string, items []T) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.items = clone(items)
	e.version++
	e.updatedAt = c.now()

	var applied []*mutation[T]
	for pk, q := range c.queues {
		if pk.key == key && len(q) > 0 && q[0].handle.state == stateApplied {
			applied = append(applied, q[0])
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].appliedVersion < applied[j].appliedVersion })
	for _, m := range applied {
		c.applyLocked(m, true)
	}
	c.mu.Unlock()

	c.notify(Event{Key: key, Type: EventReplaced})
}

// Remove drops the collection under key.
func (c *Cache[T]) Remove(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.notify(Event{Key: key, Type: EventRemoved})
	}
}

// ApplyOptimistic records a speculative write to one entity of the collection
// under key. fn receives a copy of the current collection and returns the new one.
// If another mutation for the same entity is unresolved, this one queues and
// the returned handle's Ready channel closes only when it has been applied.
func (c *Cache[T]) ApplyOptimistic(key string, entityID int64, fn func([]T) []T) *Handle {
	h := &Handle{
		id:       uuid.New().String(),
		key:      key,
		entityID: entityID,
		ready:    make(chan struct{}),
		state:    stateQueued,
	}
	m := &mutation[T]{handle: h, fn: fn}

	c.mu.Lock()
	pk := pendingKey{key, entityID}
	c.queues[pk] = append(c.queues[pk], m)
	c.pending[h] = m
	applied := len(c.queues[pk]) == 1
	if applied {
		c.applyLocked(m, false)
	}
	c.mu.Unlock()

	if applied {
		c.notify(Event{Key: key, Type: EventApplied, EntityID: entityID, HandleID: h.id})
	}
	return h
}

// Commit makes an applied mutation authoritative and releases the next queued
// mutation for the same entity.
func (c *Cache[T]) Commit(h *Handle) error {
	c.mu.Lock()
	m, err := c.lookupLocked(h)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if h.state == stateQueued {
		c.mu.Unlock()
		return ErrNotApplied
	}
	h.state = stateCommitted
	m.snapshot = nil
	next := c.advanceLocked(m)
	c.mu.Unlock()

	c.notify(Event{Key: h.key, Type: EventCommitted, EntityID: h.entityID, HandleID: h.id})
	if next != nil {
		c.notify(Event{Key: next.key, Type: EventApplied, EntityID: next.entityID, HandleID: next.id})
	}
	return nil
}

// Rollback undoes a mutation. If nothing else has written the key since the
// mutation was applied, the prior collection is restored verbatim; otherwise
// only the entity's prior value (and position) is restored. Rolling back a
// queued mutation withdraws it without touching state.
func (c *Cache[T]) Rollback(h *Handle) error {
	c.mu.Lock()
	m, err := c.lookupLocked(h)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if h.state == stateQueued {
		h.state = stateRolledBack
		c.dropQueuedLocked(m)
		c.mu.Unlock()
		h.withdrawn.Store(true)
		close(h.ready)
		return nil
	}

	h.state = stateRolledBack
	if e, ok := c.entries[h.key]; ok {
		if e.version == m.appliedVersion {
			if m.priorPresent {
				e.items = m.snapshot
			} else {
				delete(c.entries, h.key)
			}
		} else {
			e.items = restoreEntity(e.items, m)
		}
		e.version++
	}
	m.snapshot = nil
	next := c.advanceLocked(m)
	c.mu.Unlock()

	c.notify(Event{Key: h.key, Type: EventRolledBack, EntityID: h.entityID, HandleID: h.id})
	if next != nil {
		c.notify(Event{Key: next.key, Type: EventApplied, EntityID: next.entityID, HandleID: next.id})
	}
	return nil
}

// Subscribe registers fn for events on key ("" receives every key).
// The returned function unsubscribes.
func (c *Cache[T]) Subscribe(key string, fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, key: key, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache[T]) notify(ev Event) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		if s.key == "" || s.key == ev.Key {
			s.fn(ev)
		}
	}
}

func (c *Cache[T]) entryLocked(key string) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[T]) lookupLocked(h *Handle) (*mutation[T], error) {
	if h == nil {
		return nil, ErrUnknownHandle
	}
	if h.state == stateCommitted || h.state == stateRolledBack {
		return nil, ErrResolved
	}
	m, ok := c.pending[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return m, nil
}

// applyLocked runs m.fn against the current collection. rebase is set when
// re-applying after Replace; the handle is already marked applied then.
func (c *Cache[T]) applyLocked(m *mutation[T], rebase bool) {
	h := m.handle
	_, present := c.entries[h.key]
	e := c.entryLocked(h.key)

	m.priorPresent = present || rebase
	m.snapshot = clone(e.items)
	m.priorIndex = indexOf(e.items, h.entityID)
	m.hadPrior = m.priorIndex >= 0
	if m.hadPrior {
		m.prior = e.items[m.priorIndex]
	}

	e.items = m.fn(clone(e.items))
	e.version++
	m.appliedVersion = e.version

	if !rebase {
		h.state = stateApplied
		close(h.ready)
	}
}

// advanceLocked removes the resolved head mutation and applies the next one
// queued for the same entity, returning its handle.
func (c *Cache[T]) advanceLocked(m *mutation[T]) *Handle {
	h := m.handle
	delete(c.pending, h)
	pk := pendingKey{h.key, h.entityID}
	q := c.queues[pk]
	if len(q) > 0 && q[0] == m {
		q = q[1:]
	}
	if len(q) == 0 {
		delete(c.queues, pk)
		return nil
	}
	c.queues[pk] = q
	next := q[0]
	c.applyLocked(next, false)
	return next.handle
}

func (c *Cache[T]) dropQueuedLocked(m *mutation[T]) {
	h := m.handle
	delete(c.pending, h)
	pk := pendingKey{h.key, h.entityID}
	q := c.queues[pk]
	for i, qm := range q {
		if qm == m {
			c.queues[pk] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	if len(c.queues[pk]) == 0 {
		delete(c.queues, pk)
	}
}

func restoreEntity[T Entity](items []T, m *mutation[T]) []T {
	id := m.handle.entityID
	if i := indexOf(items, id); i >= 0 {
		items = append(items[:i:i], items[i+1:]...)
	}
	if !m.hadPrior {
		return items
	}
	idx := m.priorIndex
	if idx > len(items) {
		idx = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:idx]...)
	out = append(out, m.prior)
	return append(out, items[idx:]...)
}

func indexOf[T Entity](items []T, id int64) int {
	for i, it := range items {
		if it.EntityID() == id {
			return i
		}
	}
	return -1
}

func clone[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
