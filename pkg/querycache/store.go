// Package querycache keeps the last known server state per query key, refetches it through
// registered query functions and tells listeners about every change.
package querycache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaemin-s/eventsync/pkg/logger"
	"github.com/jaemin-s/eventsync/pkg/metrics"
)

// QueryFunc loads the server value for key.
type QueryFunc func(ctx context.Context, key QueryKey) (any, error)

type record struct {
	entry Entry
	fn    QueryFunc
	token uint64
	task  *Task
	// prev is the entry as it was when the current fetch started; Cancel reverts to it.
	prev Entry
}

// Store is an in-memory query cache. Create one per application and pass it to consumers.
type Store struct {
	mu        sync.Mutex
	records   map[string]*record
	listeners map[string]map[uint64]Listener
	// deliveries holds notifications not yet handed to listeners, per key.
	deliveries map[string]*delivery
	seq        uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc

	fetchTimeout time.Duration
	staleTime    time.Duration
	persist      *persistence
	now          func() time.Time
	log          *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithLogger overrides the module logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFetchTimeout bounds each query function run. Zero means no bound beyond the caller's own.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.fetchTimeout = d
		}
	}
}

// WithStaleTime makes success entries stale once they are older than d. Zero keeps them fresh until invalidated.
func WithStaleTime(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.staleTime = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds an empty store.
func New(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		records:    make(map[string]*record),
		listeners:  make(map[string]map[uint64]Listener),
		deliveries: make(map[string]*delivery),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
		log:        logger.WithModule("querycache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type notification struct {
	entry     Entry
	listeners []Listener
}

// delivery is the per-key queue of notifications. At most one goroutine drains it at a time, so
// listeners see a key's entries in the order the changes were made.
type delivery struct {
	draining bool
	queue    []notification
}

// notify delivers everything queued for ids. When another goroutine is already draining a key,
// that goroutine delivers the queued entries instead.
func (s *Store) notify(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s.drain(id)
		}
	}
}

func (s *Store) drain(id string) {
	s.mu.Lock()
	d, ok := s.deliveries[id]
	if !ok || d.draining {
		s.mu.Unlock()
		return
	}
	d.draining = true
	locked := true
	defer func() {
		if !locked {
			s.mu.Lock()
		}
		d.draining = false
		if len(d.queue) == 0 {
			delete(s.deliveries, id)
		}
		s.mu.Unlock()
	}()

	for len(d.queue) > 0 {
		n := d.queue[0]
		d.queue[0] = notification{}
		d.queue = d.queue[1:]
		s.mu.Unlock()
		locked = false
		for _, l := range n.listeners {
			l(n.entry)
		}
		s.mu.Lock()
		locked = true
	}
}

// pendingLocked queues entry for the current listeners of key and returns the id to pass to notify,
// or "" when nobody is listening.
func (s *Store) pendingLocked(key QueryKey, entry Entry) string {
	id := key.String()
	subs := s.listeners[id]
	if len(subs) == 0 {
		return ""
	}
	ids := make([]uint64, 0, len(subs))
	for sub := range subs {
		ids = append(ids, sub)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ls := make([]Listener, 0, len(ids))
	for _, sub := range ids {
		ls = append(ls, subs[sub])
	}

	d, ok := s.deliveries[id]
	if !ok {
		d = &delivery{}
		s.deliveries[id] = d
	}
	d.queue = append(d.queue, notification{entry: entry, listeners: ls})
	return id
}

func (s *Store) recordLocked(key QueryKey) *record {
	id := key.String()
	rec, ok := s.records[id]
	if !ok {
		rec = &record{entry: idleEntry(Key(key...))}
		s.records[id] = rec
	}
	return rec
}

func (s *Store) snapshotLocked(rec *record) Entry {
	entry := rec.entry
	entry.Key = Key(rec.entry.Key...)
	if entry.Status == StatusSuccess && !entry.Stale && s.staleTime > 0 && s.now().Sub(entry.UpdatedAt) > s.staleTime {
		entry.Stale = true
	}
	return entry
}

// Get returns the current entry for key, or an idle entry if none exists. It never blocks on a fetch.
func (s *Store) Get(key QueryKey) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key.String()]
	if !ok {
		return idleEntry(Key(key...))
	}
	return s.snapshotLocked(rec)
}

// Set stores data as a success value and notifies listeners before returning, unless another
// goroutine is already delivering for key; that goroutine then delivers the new entry after the
// ones queued before it.
func (s *Store) Set(key QueryKey, data any) {
	s.mu.Lock()
	rec := s.recordLocked(key)
	rec.entry.Data = data
	rec.entry.Status = StatusSuccess
	rec.entry.Err = nil
	rec.entry.Stale = false
	rec.entry.UpdatedAt = s.now()
	n := s.pendingLocked(key, s.snapshotLocked(rec))
	s.mu.Unlock()

	s.notify(n)
}

// Update derives the new value from the current entry under the store lock and stores it as Set would.
// Returning false from fn leaves the entry untouched.
func (s *Store) Update(key QueryKey, fn func(prev Entry) (any, bool)) bool {
	s.mu.Lock()
	rec := s.recordLocked(key)
	data, ok := fn(s.snapshotLocked(rec))
	if !ok {
		s.mu.Unlock()
		return false
	}
	rec.entry.Data = data
	rec.entry.Status = StatusSuccess
	rec.entry.Err = nil
	rec.entry.Stale = false
	rec.entry.UpdatedAt = s.now()
	n := s.pendingLocked(key, s.snapshotLocked(rec))
	s.mu.Unlock()

	s.notify(n)
	return true
}

// Restore reinstates a snapshot taken with Get. An idle snapshot resets the key to idle with no data.
func (s *Store) Restore(snapshot Entry) {
	key := snapshot.Key
	s.mu.Lock()
	rec := s.recordLocked(key)
	fetching := rec.entry.Fetching
	if snapshot.Status == StatusIdle && snapshot.Data == nil {
		rec.entry = idleEntry(Key(key...))
	} else {
		rec.entry = snapshot
		rec.entry.Key = Key(key...)
	}
	rec.entry.Fetching = fetching
	n := s.pendingLocked(key, s.snapshotLocked(rec))
	s.mu.Unlock()

	s.notify(n)
}

// Register sets the query function used to (re)fetch key.
func (s *Store) Register(key QueryKey, fn QueryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordLocked(key).fn = fn
}

// Subscribe calls l after every transition of key until the returned function is called.
func (s *Store) Subscribe(key QueryKey, l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	k := key.String()
	if s.listeners[k] == nil {
		s.listeners[k] = make(map[uint64]Listener)
	}
	s.listeners[k][id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs := s.listeners[k]; subs != nil {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.listeners, k)
				}
			}
		})
	}
}

// Query registers fn (when non-nil) and returns a fresh success entry, fetching and waiting when
// the entry is missing, stale or failed. When the awaited fetch is superseded by Invalidate or
// dropped by Cancel, Query follows up with whatever replaced it instead of returning the old entry.
func (s *Store) Query(ctx context.Context, key QueryKey, fn QueryFunc) (Entry, error) {
	if fn != nil {
		s.Register(key, fn)
	}

	current := s.Get(key)
	switch {
	case current.IsFresh():
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return current, nil
	case current.HasData():
		metrics.CacheLookups.WithLabelValues("stale").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	for {
		_, err := s.Fetch(key).Wait(ctx)
		if !errors.Is(err, ErrDiscarded) {
			return s.Get(key), err
		}
		// The fetch was superseded or cancelled. Take over whatever replaced it.
		if ctx.Err() != nil {
			return s.Get(key), ctx.Err()
		}
		if entry := s.Get(key); entry.IsFresh() {
			return entry, nil
		}
	}
}

// Fetch starts a run of key's query function, or joins the one already in flight.
func (s *Store) Fetch(key QueryKey) *Task {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return completedTask(Key(key...), ErrClosed)
	}
	rec, ok := s.records[key.String()]
	if !ok || rec.fn == nil {
		s.mu.Unlock()
		return completedTask(Key(key...), ErrNoQueryFunc)
	}
	if rec.task != nil {
		task := rec.task
		s.mu.Unlock()
		return task
	}
	task, ctx, fn := s.startLocked(rec)
	n := s.pendingLocked(key, s.snapshotLocked(rec))
	s.mu.Unlock()

	s.notify(n)
	go s.run(ctx, task, fn)
	return task
}

func (s *Store) startLocked(rec *record) (*Task, context.Context, QueryFunc) {
	s.seq++
	rec.token = s.seq

	ctx, cancel := context.WithCancel(s.ctx)
	if s.fetchTimeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, s.fetchTimeout)
	}

	rec.prev = rec.entry
	rec.entry.Fetching = true
	if rec.entry.Data == nil {
		rec.entry.Status = StatusLoading
		rec.entry.Err = nil
	}

	task := newTask(s, Key(rec.entry.Key...), rec.token, cancel)
	rec.task = task
	return task, ctx, rec.fn
}

func withTimeout(parent context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		parentCancel()
	}
}

func (s *Store) run(ctx context.Context, task *Task, fn QueryFunc) {
	data, err := fn(ctx, task.key)
	s.complete(task, data, err)
}

func (s *Store) complete(task *Task, data any, err error) {
	s.mu.Lock()
	rec, ok := s.records[task.key.String()]
	if !ok || rec.token != task.token || rec.task != task {
		s.mu.Unlock()
		metrics.CacheFetches.WithLabelValues("discarded").Inc()
		s.log.Debug("discarding superseded fetch", zap.String("key", task.key.Display()))
		task.finish(data, err, true)
		return
	}

	rec.task = nil
	rec.entry.Fetching = false
	if err != nil {
		rec.entry.Status = StatusError
		rec.entry.Err = err
	} else {
		rec.entry.Data = data
		rec.entry.Status = StatusSuccess
		rec.entry.Err = nil
		rec.entry.Stale = false
		rec.entry.UpdatedAt = s.now()
	}
	n := s.pendingLocked(task.key, s.snapshotLocked(rec))
	s.mu.Unlock()

	if err != nil {
		metrics.CacheFetches.WithLabelValues("error").Inc()
		s.log.Debug("fetch failed", zap.String("key", task.key.Display()), zap.Error(err))
	} else {
		metrics.CacheFetches.WithLabelValues("success").Inc()
		s.save(task.key, data)
	}

	s.notify(n)
	task.finish(data, err, false)
}

// Invalidate marks every entry whose key starts with one of prefixes as stale and refetches those
// that have a query function. One task is returned per refetched key.
func (s *Store) Invalidate(prefixes ...QueryKey) []*Task {
	type started struct {
		task *Task
		ctx  context.Context
		fn   QueryFunc
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		for _, prefix := range prefixes {
			if rec.entry.Key.HasPrefix(prefix) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)

	var (
		batch      []string
		runs       []started
		superseded []*Task
	)
	for _, id := range ids {
		rec := s.records[id]
		rec.entry.Stale = true
		metrics.CacheInvalidations.Inc()

		if rec.fn != nil {
			prev, hadTask := rec.prev, rec.task != nil
			if hadTask {
				superseded = append(superseded, rec.task)
				rec.task = nil
			}
			task, ctx, fn := s.startLocked(rec)
			if hadTask {
				rec.prev = prev
			}
			runs = append(runs, started{task: task, ctx: ctx, fn: fn})
		}
		batch = append(batch, s.pendingLocked(rec.entry.Key, s.snapshotLocked(rec)))
	}
	s.mu.Unlock()

	for _, task := range superseded {
		task.finish(nil, nil, true)
	}
	s.notify(batch...)

	tasks := make([]*Task, 0, len(runs))
	for _, r := range runs {
		go s.run(r.ctx, r.task, r.fn)
		tasks = append(tasks, r.task)
	}

	if len(ids) > 0 {
		s.log.Debug("invalidated entries", zap.Int("matched", len(ids)), zap.Int("refetching", len(tasks)))
	}
	return tasks
}

// Cancel drops the in-flight fetch for key, if any. A result that still arrives is discarded and
// the entry returns to its state from before the fetch.
func (s *Store) Cancel(key QueryKey) {
	s.mu.Lock()
	rec, ok := s.records[key.String()]
	if !ok || rec.task == nil {
		s.mu.Unlock()
		return
	}
	task := s.cancelLocked(rec)
	n := s.pendingLocked(key, s.snapshotLocked(rec))
	s.mu.Unlock()

	task.finish(nil, nil, true)
	s.notify(n)
}

func (s *Store) cancelTask(task *Task) {
	s.mu.Lock()
	rec, ok := s.records[task.key.String()]
	if !ok || rec.task != task {
		s.mu.Unlock()
		task.finish(nil, nil, true)
		return
	}
	s.cancelLocked(rec)
	n := s.pendingLocked(task.key, s.snapshotLocked(rec))
	s.mu.Unlock()

	task.finish(nil, nil, true)
	s.notify(n)
}

func (s *Store) cancelLocked(rec *record) *Task {
	task := rec.task
	s.seq++
	rec.token = s.seq
	rec.task = nil
	rec.entry.Fetching = false
	if rec.entry.Status == StatusLoading {
		rec.entry.Status = rec.prev.Status
		rec.entry.Err = rec.prev.Err
	}
	return task
}

// Remove deletes key entirely, including its query function. Listeners receive an idle entry.
func (s *Store) Remove(key QueryKey) {
	s.mu.Lock()
	rec, ok := s.records[key.String()]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.records, key.String())
	task := rec.task
	n := s.pendingLocked(key, idleEntry(Key(key...)))
	s.mu.Unlock()

	if task != nil {
		task.finish(nil, nil, true)
	}
	s.forget(key)
	s.notify(n)
}

// Keys lists the keys currently held, sorted.
func (s *Store) Keys() []QueryKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keys := make([]QueryKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, Key(s.records[id].entry.Key...))
	}
	return keys
}

// Close cancels all in-flight fetches. Later fetches fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var tasks []*Task
	for _, rec := range s.records {
		if rec.task != nil {
			tasks = append(tasks, s.cancelLocked(rec))
		}
	}
	s.mu.Unlock()

	s.cancel()
	for _, task := range tasks {
		task.finish(nil, nil, true)
	}
}
