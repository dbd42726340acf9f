// Package fetch coalesces loads per key and writes their results into a cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"taskdeck/internal/cache"
)

// ErrNoCredential is returned when the gate reports no usable credential.
var ErrNoCredential = errors.New("no credential available")

// Loader retrieves a collection from the backend.
type Loader[T cache.Entity] func(ctx context.Context) ([]T, error)

// Gate reports whether fetching is allowed.
type Gate interface {
	HasCredential() bool
}

// Option configures a Coordinator.
type Option[T cache.Entity] func(*Coordinator[T])

// WithGate refuses fetches while the gate reports no credential.
func WithGate[T cache.Entity](g Gate) Option[T] {
	return func(c *Coordinator[T]) { c.gate = g }
}

// WithOnLoaded registers a hook called after a successful cache write.
func WithOnLoaded[T cache.Entity](fn func(key string, items []T)) Option[T] {
	return func(c *Coordinator[T]) { c.onLoaded = fn }
}

// Coordinator deduplicates concurrent loads of the same key.
type Coordinator[T cache.Entity] struct {
	cache    *cache.Cache[T]
	group    singleflight.Group
	mu       sync.Mutex
	gens     map[string]uint64
	gate     Gate
	onLoaded func(key string, items []T)
	now      func() time.Time
}

// New creates a Coordinator writing into c.
func New[T cache.Entity](c *cache.Cache[T], opts ...Option[T]) *Coordinator[T] {
	co := &Coordinator[T]{
		cache: c,
		gens:  make(map[string]uint64),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Cache returns the cache the coordinator writes to.
func (co *Coordinator[T]) Cache() *cache.Cache[T] {
	return co.cache
}

// Fetch loads key, joining any load already in flight for it. The loader runs
// detached from ctx; ctx only bounds how long this caller waits.
func (co *Coordinator[T]) Fetch(ctx context.Context, key string, load Loader[T]) ([]T, error) {
	if co.gate != nil && !co.gate.HasCredential() {
		return nil, ErrNoCredential
	}

	gen := co.generation(key)
	ch := co.group.DoChan(key, func() (any, error) {
		items, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if co.write(key, gen, items) && co.onLoaded != nil {
			co.onLoaded(key, items)
		}
		return items, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, res.Err)
		}
		items, _ := res.Val.([]T)
		out := make([]T, len(items))
		copy(out, items)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ensure returns the cached collection when it is fresher than ttl and
// fetches it otherwise.
func (co *Coordinator[T]) Ensure(ctx context.Context, key string, ttl time.Duration, load Loader[T]) ([]T, error) {
	if !co.Stale(key, ttl) {
		if items, ok := co.cache.Get(key); ok {
			return items, nil
		}
	}
	return co.Fetch(ctx, key, load)
}

// Invalidate drops the cached value and any in-flight call for key. A load
// already running still answers its callers but no longer writes the cache.
// Cache subscribers must not call it.
func (co *Coordinator[T]) Invalidate(key string) {
	co.mu.Lock()
	co.gens[key]++
	co.cache.Remove(key)
	co.mu.Unlock()

	co.group.Forget(key)
}

// write stores items unless key was invalidated after the load began. The
// generation check and the store happen under one lock so an Invalidate
// cannot land between them.
func (co *Coordinator[T]) write(key string, gen uint64, items []T) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.gens[key] != gen {
		return false
	}
	co.cache.Replace(key, items)
	return true
}

// Stale reports whether key is missing or older than ttl. A non-positive ttl
// only treats missing keys as stale.
func (co *Coordinator[T]) Stale(key string, ttl time.Duration) bool {
	at, ok := co.cache.UpdatedAt(key)
	if !ok {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return co.now().Sub(at) > ttl
}

func (co *Coordinator[T]) generation(key string) uint64 {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.gens[key]
}

// LoadAll runs independent loads concurrently and returns the first error.
func LoadAll(ctx context.Context, loads ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, load := range loads {
		g.Go(func() error { return load(gctx) })
	}
	return g.Wait()
}
