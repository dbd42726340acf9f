package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskdeck/internal/cache"
)

type row struct{ ID int64 }

func (r row) EntityID() int64 { return r.ID }

type gate bool

func (g gate) HasCredential() bool { return bool(g) }

// =============================================================================
// Coalescing
// =============================================================================

func TestFetchCoalescesConcurrentCalls(t *testing.T) {
	co := New(cache.New[row]())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]row, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []row{{ID: 1}, {ID: 2}}, nil
	}

	var wg sync.WaitGroup
	results := make([][]row, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = co.Fetch(context.Background(), TasksKey(), load)
	}()
	<-started
	time.Sleep(5 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = co.Fetch(context.Background(), TasksKey(), load)
	}()
	time.Sleep(5 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(results[i]) != 2 {
			t.Errorf("caller %d got %d rows, want 2", i, len(results[i]))
		}
	}
	if items, ok := co.Cache().Get(TasksKey()); !ok || len(items) != 2 {
		t.Errorf("expected result written to cache, got %v %v", items, ok)
	}
}

func TestFetchErrorSharedAndNotCached(t *testing.T) {
	co := New(cache.New[row]())
	boom := errors.New("boom")

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]row, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := co.Fetch(context.Background(), StatusesKey(), load)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	}
	if _, ok := co.Cache().Get(StatusesKey()); ok {
		t.Errorf("failed load must not write the cache")
	}

	// The in-flight marker is cleared, so the next call loads again.
	before := calls.Load()
	_, _ = co.Fetch(context.Background(), StatusesKey(), func(ctx context.Context) ([]row, error) {
		calls.Add(1)
		return nil, nil
	})
	if calls.Load() != before+1 {
		t.Errorf("expected a fresh load after failure")
	}
}

func TestCallerCancelDoesNotAbortOthers(t *testing.T) {
	co := New(cache.New[row]())
	release := make(chan struct{})
	var loaderCtxErr atomic.Value
	load := func(ctx context.Context) ([]row, error) {
		<-release
		if err := ctx.Err(); err != nil {
			loaderCtxErr.Store(err)
		}
		return []row{{ID: 5}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := co.Fetch(ctx, TasksKey(), load)
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	secondDone := make(chan []row, 1)
	go func() {
		items, _ := co.Fetch(context.Background(), TasksKey(), load)
		secondDone <- items
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}
	close(release)

	select {
	case items := <-secondDone:
		if len(items) != 1 || items[0].ID != 5 {
			t.Errorf("second caller got %v", items)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	if v := loaderCtxErr.Load(); v != nil {
		t.Errorf("loader saw cancelled context: %v", v)
	}
}

// =============================================================================
// Invalidation / staleness
// =============================================================================

func TestInvalidateSkipsStaleWrite(t *testing.T) {
	co := New(cache.New[row]())
	release := make(chan struct{})
	done := make(chan []row, 1)

	go func() {
		items, _ := co.Fetch(context.Background(), TasksKey(), func(ctx context.Context) ([]row, error) {
			<-release
			return []row{{ID: 1}}, nil
		})
		done <- items
	}()
	time.Sleep(10 * time.Millisecond)

	co.Invalidate(TasksKey())
	close(release)

	if items := <-done; len(items) != 1 {
		t.Errorf("in-flight caller should still get its result, got %v", items)
	}
	if _, ok := co.Cache().Get(TasksKey()); ok {
		t.Errorf("load started before invalidation must not write the cache")
	}

	var calls int
	_, err := co.Fetch(context.Background(), TasksKey(), func(ctx context.Context) ([]row, error) {
		calls++
		return []row{{ID: 2}}, nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("Fetch after invalidate: err=%v calls=%d", err, calls)
	}
	if items, _ := co.Cache().Get(TasksKey()); len(items) != 1 || items[0].ID != 2 {
		t.Errorf("cache = %v, want fresh load", items)
	}
}

func TestInvalidateRacingWriteLeavesKeyEmpty(t *testing.T) {
	for i := 0; i < 200; i++ {
		co := New(cache.New[row]())
		entered := make(chan struct{})
		release := make(chan struct{})
		done := make(chan struct{})

		go func() {
			defer close(done)
			_, _ = co.Fetch(context.Background(), TasksKey(), func(ctx context.Context) ([]row, error) {
				close(entered)
				<-release
				return []row{{ID: 1}}, nil
			})
		}()
		<-entered

		invalidated := make(chan struct{})
		go func() {
			defer close(invalidated)
			co.Invalidate(TasksKey())
		}()
		close(release)
		<-done
		<-invalidated

		if items, ok := co.Cache().Get(TasksKey()); ok {
			t.Fatalf("iteration %d: load overlapping Invalidate left %v in the cache", i, items)
		}
	}
}

func TestStale(t *testing.T) {
	co := New(cache.New[row]())
	if !co.Stale(TasksKey(), time.Minute) {
		t.Errorf("missing key should be stale")
	}
	co.Cache().Replace(TasksKey(), []row{{ID: 1}})
	if co.Stale(TasksKey(), time.Minute) {
		t.Errorf("fresh key should not be stale")
	}
	co.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if !co.Stale(TasksKey(), time.Minute) {
		t.Errorf("old key should be stale")
	}
}

func TestEnsureUsesFreshCache(t *testing.T) {
	co := New(cache.New[row]())
	co.Cache().Replace(TasksKey(), []row{{ID: 9}})

	items, err := co.Ensure(context.Background(), TasksKey(), time.Minute, func(ctx context.Context) ([]row, error) {
		t.Fatal("loader should not run for a fresh key")
		return nil, nil
	})
	if err != nil || len(items) != 1 || items[0].ID != 9 {
		t.Errorf("Ensure = %v, %v", items, err)
	}
}

// =============================================================================
// Gate / hooks
// =============================================================================

func TestGateRefusesWithoutCredential(t *testing.T) {
	co := New(cache.New[row](), WithGate[row](gate(false)))
	_, err := co.Fetch(context.Background(), TasksKey(), func(ctx context.Context) ([]row, error) {
		t.Fatal("loader must not run without credential")
		return nil, nil
	})
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("err = %v, want ErrNoCredential", err)
	}
}

func TestOnLoadedHook(t *testing.T) {
	var gotKey string
	co := New(cache.New[row](), WithOnLoaded(func(key string, items []row) { gotKey = key }))
	if _, err := co.Fetch(context.Background(), GroupTasksKey(3), func(ctx context.Context) ([]row, error) {
		return []row{{ID: 1}}, nil
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotKey != "tasks/group/3" {
		t.Errorf("hook key = %q", gotKey)
	}
}

func TestLoadAllReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32
	err := LoadAll(context.Background(),
		func(ctx context.Context) error { ran.Add(1); return nil },
		func(ctx context.Context) error { ran.Add(1); return boom },
	)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2", ran.Load())
	}
}
