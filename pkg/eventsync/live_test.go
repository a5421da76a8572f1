package eventsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

func TestApplyChange(t *testing.T) {
	store := querycache.New()
	t.Cleanup(store.Close)
	client := New(nil, store, nil)

	store.Set(ListKey(), &events.EventList{})
	store.Set(DetailKey("1"), &events.Event{ID: "1"})
	store.Set(DetailKey("2"), &events.Event{ID: "2"})

	require.False(t, client.ApplyChange(ChangeMessage{Stream: "users", Event: ChangeDeleted, Data: ChangeData{ID: "1"}}))
	require.False(t, client.ApplyChange(ChangeMessage{Stream: "events", Event: "event.renamed"}))

	require.True(t, client.ApplyChange(ChangeMessage{Stream: "events", Event: ChangeUpdated, Data: ChangeData{ID: "2"}}))
	require.True(t, store.Get(ListKey()).Stale)
	require.True(t, store.Get(DetailKey("2")).Stale)

	require.True(t, client.ApplyChange(ChangeMessage{Stream: " Events ", Event: ChangeDeleted, Data: ChangeData{ID: "1"}}))
	require.Equal(t, querycache.StatusIdle, store.Get(DetailKey("1")).Status)
}

func TestListenAppliesChangesAndReconnects(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if connections.Add(1) == 1 {
			// drop the first connection right after one change
			_ = conn.WriteJSON(ChangeMessage{Stream: "events", Event: ChangeDeleted, Data: ChangeData{ID: "1"}})
			_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
			return
		}
		_ = conn.WriteJSON(ChangeMessage{Stream: "events", Event: ChangeCreated, Data: ChangeData{ID: "3"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	store := querycache.New()
	t.Cleanup(store.Close)
	client := New(nil, store, nil)
	store.Set(DetailKey("1"), &events.Event{ID: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan ChangeMessage, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Listen(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"),
			WithReconnectDelay(10*time.Millisecond),
			WithChangeHook(func(msg ChangeMessage) { changes <- msg }))
	}()

	for _, want := range []string{ChangeDeleted, ChangeCreated} {
		select {
		case msg := <-changes:
			require.Equal(t, want, msg.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	require.Equal(t, querycache.StatusIdle, store.Get(DetailKey("1")).Status)
	require.GreaterOrEqual(t, connections.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not stop")
	}
}

func TestListenStopsWhileBackendIsDown(t *testing.T) {
	client := New(nil, querycache.New(), nil)
	t.Cleanup(client.Store().Close)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Listen(ctx, "ws://127.0.0.1:1/ws/events", WithReconnectDelay(5*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
