package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

func valueFunc(v any) QueryFunc {
	return func(ctx context.Context, key QueryKey) (any, error) {
		return v, nil
	}
}

// gatedFunc blocks each call until release receives a value.
type gatedFunc struct {
	calls   atomic.Int32
	started chan struct{}
	release chan any
}

func newGatedFunc() *gatedFunc {
	return &gatedFunc{started: make(chan struct{}, 8), release: make(chan any, 8)}
}

func (g *gatedFunc) fn(ctx context.Context, key QueryKey) (any, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case v := <-g.release:
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestKeyPrefixAndEquality(t *testing.T) {
	require.True(t, Key("events", "1").Equal(Key("events", "1")))
	require.False(t, Key("events", "1").Equal(Key("events")))
	require.True(t, Key("events", "1").HasPrefix(Key("events")))
	require.True(t, Key("events").HasPrefix(Key()))
	require.False(t, Key("events").HasPrefix(Key("events", "1")))
	require.False(t, Key("eventsx").HasPrefix(Key("events")))
	require.Equal(t, Key("events"), Key("events", "9").Collection())
	require.Equal(t, Key("a", "b"), ParseKey(Key("a", "b").String()))
}

func TestGetUnknownKeyIsIdle(t *testing.T) {
	s := newTestStore(t)

	entry := s.Get(Key("events", "1"))
	require.Equal(t, StatusIdle, entry.Status)
	require.Nil(t, entry.Data)
	require.False(t, entry.Fetching)
}

func TestSetNotifiesBeforeReturning(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")

	var seen []Entry
	unsubscribe := s.Subscribe(key, func(e Entry) { seen = append(seen, e) })

	s.Set(key, "A")
	require.Len(t, seen, 1)
	require.Equal(t, StatusSuccess, seen[0].Status)
	require.Equal(t, "A", seen[0].Data)

	unsubscribe()
	unsubscribe()
	s.Set(key, "B")
	require.Len(t, seen, 1)
}

func TestQueryFetchesOnceAndCaches(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")

	var calls atomic.Int32
	fn := func(ctx context.Context, k QueryKey) (any, error) {
		calls.Add(1)
		return "v1", nil
	}

	entry, err := s.Query(context.Background(), key, fn)
	require.NoError(t, err)
	require.Equal(t, "v1", entry.Data)
	require.True(t, entry.IsFresh())

	entry, err = s.Query(context.Background(), key, fn)
	require.NoError(t, err)
	require.Equal(t, "v1", entry.Data)
	require.EqualValues(t, 1, calls.Load())
}

func TestQueryErrorKeepsPreviousData(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")
	boom := errors.New("Could not fetch event.")

	s.Set(key, "old")
	s.Register(key, func(ctx context.Context, k QueryKey) (any, error) { return nil, boom })
	s.Invalidate(key)[0].Wait(context.Background())

	entry := s.Get(key)
	require.Equal(t, StatusError, entry.Status)
	require.ErrorIs(t, entry.Err, boom)
	require.Equal(t, "old", entry.Data)
}

func TestFetchDeduplicatesInFlight(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	gate := newGatedFunc()
	s.Register(key, gate.fn)

	first := s.Fetch(key)
	<-gate.started
	second := s.Fetch(key)
	require.Same(t, first, second)

	loading := s.Get(key)
	require.Equal(t, StatusLoading, loading.Status)
	require.True(t, loading.Fetching)

	gate.release <- "list"
	data, err := first.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "list", data)
	require.EqualValues(t, 1, gate.calls.Load())
	require.False(t, s.Get(key).Fetching)
}

func TestFetchWithoutQueryFunc(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Fetch(Key("events")).Wait(context.Background())
	require.ErrorIs(t, err, ErrNoQueryFunc)
}

func TestInvalidatePrefixRefetchesEveryMatch(t *testing.T) {
	s := newTestStore(t)

	s.Register(Key("events"), valueFunc("list-v2"))
	s.Register(Key("events", "1"), valueFunc("detail-v2"))
	s.Register(Key("users"), valueFunc("users-v2"))
	s.Set(Key("events"), "list-v1")
	s.Set(Key("events", "1"), "detail-v1")
	s.Set(Key("users"), "users-v1")

	tasks := s.Invalidate(Key("events"))
	require.Len(t, tasks, 2)
	require.NoError(t, WaitAll(context.Background(), tasks...))

	require.Equal(t, "list-v2", s.Get(Key("events")).Data)
	require.Equal(t, "detail-v2", s.Get(Key("events", "1")).Data)
	require.True(t, s.Get(Key("events")).IsFresh())
	require.Equal(t, "users-v1", s.Get(Key("users")).Data)
}

func TestInvalidateWithoutQueryFuncOnlyMarksStale(t *testing.T) {
	s := newTestStore(t)
	s.Set(Key("events"), "v1")

	tasks := s.Invalidate(Key("events"))
	require.Empty(t, tasks)

	entry := s.Get(Key("events"))
	require.True(t, entry.Stale)
	require.Equal(t, "v1", entry.Data)
}

func TestInvalidateSupersedesInFlightFetch(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	gate := newGatedFunc()
	s.Register(key, gate.fn)

	first := s.Fetch(key)
	<-gate.started
	tasks := s.Invalidate(key)
	require.Len(t, tasks, 1)
	<-gate.started

	gate.release <- "old"
	_, err := first.Wait(context.Background())
	require.ErrorIs(t, err, ErrDiscarded)

	gate.release <- "new"
	require.NoError(t, WaitAll(context.Background(), tasks...))
	require.Equal(t, "new", s.Get(key).Data)
}

func TestCancelDiscardsLateResult(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")
	s.Set(key, "A")

	var mu sync.Mutex
	var seen []any
	s.Subscribe(key, func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Data)
	})

	started := make(chan struct{})
	release := make(chan struct{})
	s.Register(key, func(ctx context.Context, k QueryKey) (any, error) {
		close(started)
		<-release
		return "stale-server-value", nil
	})

	task := s.Fetch(key)
	<-started
	s.Cancel(key)
	s.Set(key, "B")
	close(release)

	_, err := task.Wait(context.Background())
	require.ErrorIs(t, err, ErrDiscarded)
	require.True(t, task.Discarded())

	// the fetch goroutine hands back its result after the wait returns
	require.Never(t, func() bool { return s.Get(key).Data != "B" }, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotContains(t, seen, "stale-server-value")
}

func TestTaskCancelRevertsLoading(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	gate := newGatedFunc()
	s.Register(key, gate.fn)

	task := s.Fetch(key)
	<-gate.started
	task.Cancel()

	entry := s.Get(key)
	require.Equal(t, StatusIdle, entry.Status)
	require.False(t, entry.Fetching)
}

// replacedFunc blocks its first call until that run is cancelled; later calls wait for release
// and return "fresh".
type replacedFunc struct {
	calls   atomic.Int32
	started chan int32
	release chan struct{}
}

func newReplacedFunc() *replacedFunc {
	return &replacedFunc{started: make(chan int32, 4), release: make(chan struct{})}
}

func (r *replacedFunc) fn(ctx context.Context, key QueryKey) (any, error) {
	n := r.calls.Add(1)
	r.started <- n
	if n == 1 {
		<-ctx.Done()
		return "superseded", nil
	}
	<-r.release
	return "fresh", nil
}

type queryResult struct {
	entry Entry
	err   error
}

func queryAsync(s *Store, key QueryKey, fn QueryFunc) <-chan queryResult {
	done := make(chan queryResult, 1)
	go func() {
		entry, err := s.Query(context.Background(), key, fn)
		done <- queryResult{entry: entry, err: err}
	}()
	return done
}

func awaitQuery(t *testing.T, done <-chan queryResult) queryResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("query did not return")
		return queryResult{}
	}
}

func TestQueryFollowsFetchStartedByInvalidate(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	fn := newReplacedFunc()

	done := queryAsync(s, key, fn.fn)
	require.Equal(t, int32(1), <-fn.started)

	require.Len(t, s.Invalidate(Key("events")), 1)
	require.Equal(t, int32(2), <-fn.started)
	close(fn.release)

	res := awaitQuery(t, done)
	require.NoError(t, res.err)
	require.Equal(t, StatusSuccess, res.entry.Status)
	require.Equal(t, "fresh", res.entry.Data)
	require.False(t, res.entry.Stale)
	require.Equal(t, int32(2), fn.calls.Load())
}

func TestQueryRefetchesAfterCancel(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	fn := newReplacedFunc()

	done := queryAsync(s, key, fn.fn)
	require.Equal(t, int32(1), <-fn.started)

	s.Cancel(key)
	require.Equal(t, int32(2), <-fn.started)
	close(fn.release)

	res := awaitQuery(t, done)
	require.NoError(t, res.err)
	require.Equal(t, StatusSuccess, res.entry.Status)
	require.Equal(t, "fresh", res.entry.Data)
}

func TestQueryAfterRemoveReportsMissingQueryFunc(t *testing.T) {
	s := newTestStore(t)
	key := Key("events")
	fn := newReplacedFunc()

	done := queryAsync(s, key, fn.fn)
	require.Equal(t, int32(1), <-fn.started)

	s.Remove(key)
	res := awaitQuery(t, done)
	require.ErrorIs(t, res.err, ErrNoQueryFunc)
	require.Equal(t, StatusIdle, res.entry.Status)
}

func TestConcurrentSetsDeliverLatestEntryLast(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")

	var mu sync.Mutex
	var last any
	s.Subscribe(key, func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		last = e.Data
	})

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					s.Set(key, fmt.Sprintf("%d-%d-%d", round, w, i))
				}
			}(w)
		}
		wg.Wait()

		mu.Lock()
		got := last
		mu.Unlock()
		require.Equal(t, s.Get(key).Data, got, "round %d", round)
	}
}

func TestListenerSetIsDeliveredAfterCurrentEntry(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")

	var seen []any
	s.Subscribe(key, func(e Entry) {
		seen = append(seen, e.Data)
		if e.Data == "A" {
			s.Set(key, "B")
		}
	})

	s.Set(key, "A")
	require.Equal(t, []any{"A", "B"}, seen)
	require.Equal(t, "B", s.Get(key).Data)
}

func TestRestoreIdleSnapshot(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")

	snapshot := s.Get(key)
	s.Set(key, "optimistic")
	s.Restore(snapshot)

	entry := s.Get(key)
	require.Equal(t, StatusIdle, entry.Status)
	require.Nil(t, entry.Data)
}

func TestRestoreExactSnapshot(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")
	s.Set(key, "A")

	snapshot := s.Get(key)
	s.Set(key, "B")
	s.Restore(snapshot)

	entry := s.Get(key)
	require.Equal(t, "A", entry.Data)
	require.Equal(t, snapshot.UpdatedAt, entry.UpdatedAt)
}

func TestRemoveNotifiesIdle(t *testing.T) {
	s := newTestStore(t)
	key := Key("events", "1")
	s.Set(key, "A")

	var last Entry
	s.Subscribe(key, func(e Entry) { last = e })

	s.Remove(key)
	require.Equal(t, StatusIdle, last.Status)
	require.Empty(t, s.Keys())
}

func TestStaleTimeAgesEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithStaleTime(time.Minute), WithClock(func() time.Time { return now }))
	key := Key("events")

	s.Set(key, "v1")
	require.True(t, s.Get(key).IsFresh())

	now = now.Add(2 * time.Minute)
	require.True(t, s.Get(key).Stale)
}

func TestKeysSorted(t *testing.T) {
	s := newTestStore(t)
	s.Set(Key("events", "2"), 2)
	s.Set(Key("events"), 0)
	s.Set(Key("events", "1"), 1)

	require.Equal(t, []QueryKey{Key("events"), Key("events", "1"), Key("events", "2")}, s.Keys())
}

func TestClosedStoreRejectsFetch(t *testing.T) {
	s := New()
	s.Register(Key("events"), valueFunc("v"))
	s.Close()

	_, err := s.Fetch(Key("events")).Wait(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, s.Invalidate(Key("events")))
}

func TestFetchTimeoutSurfacesAsError(t *testing.T) {
	s := newTestStore(t, WithFetchTimeout(20*time.Millisecond))
	key := Key("events")
	s.Register(key, func(ctx context.Context, k QueryKey) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := s.Fetch(key).Wait(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StatusError, s.Get(key).Status)
}
