// Package mutation runs writes against the server with optimistic cache updates, rollback on
// failure and invalidation once the write has settled.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jaemin-s/eventsync/pkg/logger"
	"github.com/jaemin-s/eventsync/pkg/metrics"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// Phase is a step of a single mutation.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePending Phase = "pending"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
	PhaseSettled Phase = "settled"
)

// ErrNoAction is returned for a mutation without a Do function.
var ErrNoAction = errors.New("mutation: Do is required")

// Mutation describes one write.
type Mutation struct {
	// Name labels logs and metrics, e.g. "update_event".
	Name string
	// Key is the entry the write affects. Mutations on the same key run one at a time.
	Key querycache.QueryKey
	// Invalidate lists extra prefixes to refetch on settlement. Key and its collection always are.
	Invalidate []querycache.QueryKey
	// Optimistic derives the value shown while the write is in flight. Returning false skips it.
	Optimistic func(prev querycache.Entry) (any, bool)
	// Do performs the write.
	Do func(ctx context.Context) (any, error)
	// OnSuccess runs after a successful write, before invalidation.
	OnSuccess func(result any)
}

// Transition is published to observers on every phase change.
type Transition struct {
	Name  string
	Key   querycache.QueryKey
	Phase Phase
	// Entry is the cache entry for Key right after the phase was entered.
	Entry querycache.Entry
	Err   error
}

// Observer receives transitions synchronously, in order.
type Observer func(Transition)

// Coordinator applies mutations to a query cache.
type Coordinator struct {
	store     *querycache.Store
	queue     *keyQueue
	observers []Observer
	await     bool
	log       *zap.Logger
}

// Option customises a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithAwaitRefetch controls whether Mutate returns only after the settlement refetches complete.
func WithAwaitRefetch(await bool) Option {
	return func(c *Coordinator) {
		c.await = await
	}
}

// New builds a coordinator over store.
func New(store *querycache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		queue: newKeyQueue(),
		await: true,
		log:   logger.WithModule("mutation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending reports how many mutations on key are queued or running.
func (c *Coordinator) Pending(key querycache.QueryKey) int {
	return c.queue.pending(key.String())
}

// Mutate runs m and returns the result of its Do function. The error is the write's error; refetch
// failures during settlement are logged and left in the cache entries.
func (c *Coordinator) Mutate(ctx context.Context, m Mutation) (any, error) {
	if m.Do == nil {
		return nil, ErrNoAction
	}
	if len(m.Key) == 0 {
		return nil, fmt.Errorf("mutation %q: key is required", m.Name)
	}

	log := c.log.With(zap.String("mutation", m.Name), zap.String("key", m.Key.Display()))
	c.publish(m, PhaseIdle, nil)

	release, err := c.queue.acquire(ctx, m.Key.String())
	if err != nil {
		metrics.Mutations.WithLabelValues(m.Name, "cancelled").Inc()
		log.Debug("mutation cancelled while queued", zap.Error(err))
		return nil, err
	}
	defer release()

	// A fetch that was already running would overwrite the optimistic value with older data.
	c.store.Cancel(m.Key)
	snapshot := c.store.Get(m.Key)
	applied := false
	if m.Optimistic != nil {
		applied = c.store.Update(m.Key, m.Optimistic)
	}
	c.publish(m, PhasePending, nil)

	result, err := m.Do(ctx)
	if err != nil {
		if applied {
			c.store.Restore(snapshot)
		}
		metrics.Mutations.WithLabelValues(m.Name, "error").Inc()
		log.Debug("mutation failed", zap.Bool("rolled_back", applied), zap.Error(err))
		c.publish(m, PhaseError, err)
	} else {
		if m.OnSuccess != nil {
			m.OnSuccess(result)
		}
		metrics.Mutations.WithLabelValues(m.Name, "success").Inc()
		c.publish(m, PhaseSuccess, nil)
	}

	c.settle(ctx, m, log)
	c.publish(m, PhaseSettled, err)
	return result, err
}

func (c *Coordinator) settle(ctx context.Context, m Mutation, log *zap.Logger) {
	prefixes := dedupe(append([]querycache.QueryKey{m.Key, m.Key.Collection()}, m.Invalidate...))
	tasks := c.store.Invalidate(prefixes...)
	if !c.await || len(tasks) == 0 {
		return
	}
	if err := querycache.WaitAll(ctx, tasks...); err != nil {
		log.Warn("refetch after mutation failed", zap.Error(err))
	}
}

func (c *Coordinator) publish(m Mutation, phase Phase, err error) {
	if len(c.observers) == 0 {
		return
	}
	t := Transition{
		Name:  m.Name,
		Key:   m.Key,
		Phase: phase,
		Entry: c.store.Get(m.Key),
		Err:   err,
	}
	for _, o := range c.observers {
		o(t)
	}
}

func dedupe(keys []querycache.QueryKey) []querycache.QueryKey {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if len(k) == 0 {
			continue
		}
		if _, ok := seen[k.String()]; ok {
			continue
		}
		seen[k.String()] = struct{}{}
		out = append(out, k)
	}
	return out
}
