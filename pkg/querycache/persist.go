package querycache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrPersistMiss is returned by a Persister that has nothing stored for a key.
var ErrPersistMiss = errors.New("querycache: persisted value not found")

// Persister keeps serialized success values outside the process, so a later store can start warm.
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Codec converts cached values to and from the persisted form.
type Codec interface {
	Encode(key QueryKey, data any) ([]byte, error)
	Decode(key QueryKey, raw []byte) (any, error)
}

type persistence struct {
	store Persister
	codec Codec
	ttl   time.Duration
}

const persistTimeout = 5 * time.Second

// WithPersister writes every confirmed server value through p. Values expire after ttl; zero keeps them.
func WithPersister(p Persister, c Codec, ttl time.Duration) Option {
	return func(s *Store) {
		if p == nil || c == nil {
			return
		}
		s.persist = &persistence{store: p, codec: c, ttl: ttl}
	}
}

func (s *Store) save(key QueryKey, data any) {
	if s.persist == nil {
		return
	}
	raw, err := s.persist.codec.Encode(key, data)
	if err != nil {
		s.log.Warn("failed to encode cache entry", zap.String("key", key.Display()), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()
	if err := s.persist.store.Set(ctx, key.String(), raw, s.persist.ttl); err != nil {
		s.log.Warn("failed to persist cache entry", zap.String("key", key.Display()), zap.Error(err))
	}
}

func (s *Store) forget(key QueryKey) {
	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist.store.Delete(ctx, key.String()); err != nil {
		s.log.Warn("failed to delete persisted cache entry", zap.String("key", key.Display()), zap.Error(err))
	}
}

// Hydrate loads persisted values for keys that are not yet cached. Loaded entries are stale, so the
// first Query refetches them while readers already see the old value. It returns how many were loaded.
func (s *Store) Hydrate(ctx context.Context, keys ...QueryKey) (int, error) {
	if s.persist == nil {
		return 0, nil
	}

	loaded := 0
	for _, key := range keys {
		if s.Get(key).Status != StatusIdle {
			continue
		}

		raw, err := s.persist.store.Get(ctx, key.String())
		if errors.Is(err, ErrPersistMiss) {
			continue
		}
		if err != nil {
			return loaded, err
		}
		data, err := s.persist.codec.Decode(key, raw)
		if err != nil {
			s.log.Warn("dropping undecodable cache entry", zap.String("key", key.Display()), zap.Error(err))
			continue
		}

		s.mu.Lock()
		rec := s.recordLocked(key)
		if rec.entry.Status != StatusIdle {
			s.mu.Unlock()
			continue
		}
		rec.entry.Data = data
		rec.entry.Status = StatusSuccess
		rec.entry.Stale = true
		rec.entry.UpdatedAt = s.now()
		n := s.pendingLocked(key, s.snapshotLocked(rec))
		s.mu.Unlock()

		s.notify(n)
		loaded++
	}
	return loaded, nil
}
