package querycache

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoQueryFunc is returned by tasks for keys that have no registered query function.
	ErrNoQueryFunc = errors.New("querycache: no query function registered")
	// ErrDiscarded is returned by tasks whose result was dropped because the fetch was cancelled or superseded.
	ErrDiscarded = errors.New("querycache: fetch result discarded")
	// ErrClosed is returned by tasks started after Close.
	ErrClosed = errors.New("querycache: store closed")
)

// Task is a handle on one run of a key's query function.
type Task struct {
	store  *Store
	key    QueryKey
	token  uint64
	cancel context.CancelFunc

	once      sync.Once
	done      chan struct{}
	data      any
	err       error
	discarded bool
}

func newTask(store *Store, key QueryKey, token uint64, cancel context.CancelFunc) *Task {
	return &Task{
		store:  store,
		key:    key,
		token:  token,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func completedTask(key QueryKey, err error) *Task {
	t := &Task{key: key, done: make(chan struct{})}
	t.finish(nil, err, false)
	return t
}

func (t *Task) finish(data any, err error, discarded bool) {
	t.once.Do(func() {
		t.data = data
		t.err = err
		t.discarded = discarded
		if t.cancel != nil {
			t.cancel()
		}
		close(t.done)
	})
}

// Key returns the key being fetched.
func (t *Task) Key() QueryKey {
	return t.key
}

// Done is closed once the task has settled. Its entry has been queued for listeners by then and,
// unless another goroutine was already delivering for the key, handed to them.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles or ctx ends. A discarded task returns ErrDiscarded.
func (t *Task) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if t.discarded {
		return nil, ErrDiscarded
	}
	return t.data, t.err
}

// Discarded reports whether the result was dropped. Only meaningful after Done.
func (t *Task) Discarded() bool {
	select {
	case <-t.done:
		return t.discarded
	default:
		return false
	}
}

// Cancel stops the fetch if it is still the current one for its key.
func (t *Task) Cancel() {
	if t.store == nil {
		return
	}
	t.store.cancelTask(t)
}

// WaitAll waits for every task. Discarded tasks are not errors; the first fetch error is returned.
func WaitAll(ctx context.Context, tasks ...*Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		if task == nil {
			continue
		}
		task := task
		g.Go(func() error {
			_, err := task.Wait(gctx)
			if errors.Is(err, ErrDiscarded) || errors.Is(err, ErrNoQueryFunc) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
