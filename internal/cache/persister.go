package cache

import (
	"context"
	"time"

	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// Persister adapts a Store to querycache.Persister.
type Persister struct {
	store  Store
	prefix string
}

var _ querycache.Persister = (*Persister)(nil)

// NewPersister namespaces every key under prefix, e.g. "eventsync:".
func NewPersister(store Store, prefix string) *Persister {
	return &Persister{store: store, prefix: prefix}
}

func (p *Persister) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok, err := p.store.Get(ctx, p.prefix+key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, querycache.ErrPersistMiss
	}
	return value, nil
}

func (p *Persister) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.store.Set(ctx, p.prefix+key, value, ttl)
}

func (p *Persister) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, p.prefix+key)
	}
	return p.store.Delete(ctx, prefixed...)
}
