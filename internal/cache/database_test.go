package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/jaemin-s/eventsync/internal/database/testutil"
	"github.com/jaemin-s/eventsync/internal/models"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

func newTestStore(t *testing.T) (*DatabaseStore, *time.Time) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "events", []byte("v1"), 0))
	require.NoError(t, store.Set(ctx, "events", []byte("v2"), 0))

	value, ok, err := store.Get(ctx, "events")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)

	require.NoError(t, store.Delete(ctx, "events"))
	_, ok, err = store.Get(ctx, "events")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "events/1", []byte("v"), time.Minute))
	_, ok, err := store.Get(ctx, "events/1")
	require.NoError(t, err)
	require.True(t, ok)

	*now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "events/1")
	require.NoError(t, err)
	require.False(t, ok)

	var count int64
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDatabaseStorePurgeExpiredKeepsPermanentRows(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "long", []byte("b"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("c"), 0))

	removed, err := store.PurgeExpired(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	for _, key := range []string{"long", "forever"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
	}
}

func TestPersisterReportsMiss(t *testing.T) {
	store, _ := newTestStore(t)
	p := NewPersister(store, "eventsync:")
	ctx := context.Background()

	_, err := p.Get(ctx, "events")
	require.ErrorIs(t, err, querycache.ErrPersistMiss)

	require.NoError(t, p.Set(ctx, "events", []byte(`{"events":[]}`), 0))
	raw, ok, err := store.Get(ctx, "eventsync:events")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"events":[]}`, string(raw))

	value, err := p.Get(ctx, "events")
	require.NoError(t, err)
	require.Equal(t, raw, value)

	require.NoError(t, p.Delete(ctx, "events"))
	_, err = p.Get(ctx, "events")
	require.ErrorIs(t, err, querycache.ErrPersistMiss)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	require.Error(t, store.Set(context.Background(), "k", nil, 0))
}
