package mutation

import (
	"context"
	"sync"
)

// keyQueue serialises work per key. Each caller waits for the one issued before it on the same key.
type keyQueue struct {
	mu     sync.Mutex
	tails  map[string]chan struct{}
	counts map[string]int
}

func newKeyQueue() *keyQueue {
	return &keyQueue{
		tails:  make(map[string]chan struct{}),
		counts: make(map[string]int),
	}
}

// acquire blocks until every earlier caller on key has released. If ctx ends first the slot is
// still handed on in order once the predecessor finishes.
func (q *keyQueue) acquire(ctx context.Context, key string) (func(), error) {
	q.mu.Lock()
	prev := q.tails[key]
	done := make(chan struct{})
	q.tails[key] = done
	q.counts[key]++
	q.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { q.release(key, done) })
	}

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

func (q *keyQueue) release(key string, done chan struct{}) {
	q.mu.Lock()
	q.counts[key]--
	if q.counts[key] <= 0 {
		delete(q.counts, key)
	}
	if q.tails[key] == done {
		delete(q.tails, key)
	}
	q.mu.Unlock()

	close(done)
}

func (q *keyQueue) pending(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key]
}
