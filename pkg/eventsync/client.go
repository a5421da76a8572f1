// Package eventsync ties the events API, the query cache and the mutation coordinator together
// into one read/write surface for the events collection.
package eventsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/logger"
	"github.com/jaemin-s/eventsync/pkg/mutation"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// OptimisticIDPrefix marks placeholder events shown in a list while their create request is in flight.
const OptimisticIDPrefix = "optimistic-"

// ListKey is the key of the default page of the events collection, and the prefix of every events key.
func ListKey() querycache.QueryKey {
	return querycache.Key(events.Collection)
}

// DetailKey is the key of a single event.
func DetailKey(id string) querycache.QueryKey {
	return querycache.Key(events.Collection, strings.TrimSpace(id))
}

// PageKey is the key of a specific list page. The zero ListParams map to ListKey.
func PageKey(params events.ListParams) querycache.QueryKey {
	if params.Page <= 0 && params.PerPage <= 0 {
		return ListKey()
	}
	return querycache.Key(events.Collection, pagePrefix+strconv.Itoa(params.Page)+":"+strconv.Itoa(params.PerPage))
}

// pagePrefix cannot start an id produced by the backend.
const pagePrefix = "?page:"

func parsePage(part string) (events.ListParams, bool) {
	if !strings.HasPrefix(part, pagePrefix) {
		return events.ListParams{}, false
	}
	fields := strings.SplitN(strings.TrimPrefix(part, pagePrefix), ":", 2)
	if len(fields) != 2 {
		return events.ListParams{}, false
	}
	page, err1 := strconv.Atoi(fields[0])
	perPage, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return events.ListParams{}, false
	}
	return events.ListParams{Page: page, PerPage: perPage}, true
}

func isListKey(key querycache.QueryKey) bool {
	switch len(key) {
	case 1:
		return true
	case 2:
		_, ok := parsePage(key[1])
		return ok
	default:
		return false
	}
}

// Client reads events through the cache and writes them through the coordinator.
type Client struct {
	api       *events.API
	store     *querycache.Store
	mutations *mutation.Coordinator
	log       *zap.Logger
}

// New wires a Client. store and mutations are shared with the rest of the application.
func New(api *events.API, store *querycache.Store, mutations *mutation.Coordinator) *Client {
	return &Client{
		api:       api,
		store:     store,
		mutations: mutations,
		log:       logger.WithModule("eventsync"),
	}
}

// Store exposes the underlying cache.
func (c *Client) Store() *querycache.Store {
	return c.store
}

// Event returns one event, served from the cache while fresh.
func (c *Client) Event(ctx context.Context, id string) (*events.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, events.ErrMissingID
	}
	entry, err := c.store.Query(ctx, DetailKey(id), c.fetchDetail)
	if err != nil {
		return nil, err
	}
	return asEvent(entry.Data)
}

// Events returns a page of the collection, served from the cache while fresh.
func (c *Client) Events(ctx context.Context, params events.ListParams) (*events.EventList, error) {
	entry, err := c.store.Query(ctx, PageKey(params), c.fetchList)
	if err != nil {
		return nil, err
	}
	return asList(entry.Data)
}

// Prefetch starts loading an event in the background without waiting.
func (c *Client) Prefetch(id string) *querycache.Task {
	key := DetailKey(id)
	c.store.Register(key, c.fetchDetail)
	return c.store.Fetch(key)
}

// Create posts a new event. The default list shows a placeholder while the request is in flight,
// then refetches.
func (c *Client) Create(ctx context.Context, input events.CreateInput) (*events.Event, error) {
	placeholder := &events.Event{
		ID:          OptimisticIDPrefix + uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Status:      input.Status,
		OrganizerID: input.OrganizerID,
		CreatedAt:   time.Now().UTC(),
	}
	if placeholder.Status == "" {
		placeholder.Status = events.StatusDraft
	}

	result, err := c.mutations.Mutate(ctx, mutation.Mutation{
		Name: "create_event",
		Key:  ListKey(),
		Optimistic: func(prev querycache.Entry) (any, bool) {
			list, ok := prev.Data.(*events.EventList)
			if !ok || list == nil {
				return nil, false
			}
			next := cloneList(list)
			next.Events = append(next.Events, *placeholder)
			next.Total++
			return next, true
		},
		Do: func(ctx context.Context) (any, error) {
			return c.api.CreateEvent(ctx, input)
		},
		OnSuccess: func(result any) {
			if created, ok := result.(*events.Event); ok && created != nil {
				c.store.Register(DetailKey(created.ID), c.fetchDetail)
				c.store.Set(DetailKey(created.ID), created.Clone())
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return asEvent(result)
}

// Update applies input to the cached event immediately, sends it, and reconciles with the server.
func (c *Client) Update(ctx context.Context, id string, input events.UpdateInput) (*events.Event, error) {
	key := DetailKey(id)
	c.store.Register(key, c.fetchDetail)

	result, err := c.mutations.Mutate(ctx, mutation.Mutation{
		Name: "update_event",
		Key:  key,
		Optimistic: func(prev querycache.Entry) (any, bool) {
			current, ok := prev.Data.(*events.Event)
			if !ok || current == nil {
				return nil, false
			}
			return current.Apply(input), true
		},
		Do: func(ctx context.Context) (any, error) {
			return c.api.UpdateEvent(ctx, id, input)
		},
	})
	if err != nil {
		return nil, err
	}
	return asEvent(result)
}

// Delete removes an event. The detail entry is dropped once the server confirms; lists refetch.
func (c *Client) Delete(ctx context.Context, id string) (*events.DeleteResult, error) {
	key := DetailKey(id)
	result, err := c.mutations.Mutate(ctx, mutation.Mutation{
		Name: "delete_event",
		Key:  key,
		Do: func(ctx context.Context) (any, error) {
			return c.api.DeleteEvent(ctx, id)
		},
		OnSuccess: func(any) {
			c.store.Remove(key)
		},
	})
	if err != nil {
		return nil, err
	}
	res, ok := result.(*events.DeleteResult)
	if !ok {
		return nil, fmt.Errorf("eventsync: unexpected delete result %T", result)
	}
	return res, nil
}

// Watch calls fn after every change of key's entry until the returned function is called.
func (c *Client) Watch(key querycache.QueryKey, fn querycache.Listener) func() {
	return c.store.Subscribe(key, fn)
}

// Hydrate warms the cache from the persister for the given event ids and the default list.
// Loaded values are stale and refetch on first read.
func (c *Client) Hydrate(ctx context.Context, ids ...string) (int, error) {
	keys := []querycache.QueryKey{ListKey()}
	for _, id := range ids {
		keys = append(keys, DetailKey(id))
	}
	return c.store.Hydrate(ctx, keys...)
}

// Refresh invalidates every events key so registered queries refetch.
func (c *Client) Refresh(ctx context.Context) error {
	return querycache.WaitAll(ctx, c.store.Invalidate(ListKey())...)
}

func (c *Client) fetchDetail(ctx context.Context, key querycache.QueryKey) (any, error) {
	if len(key) != 2 {
		return nil, fmt.Errorf("eventsync: %s is not an event key", key.Display())
	}
	event, err := c.api.FetchEvent(ctx, key[1])
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (c *Client) fetchList(ctx context.Context, key querycache.QueryKey) (any, error) {
	var params events.ListParams
	if len(key) == 2 {
		p, ok := parsePage(key[1])
		if !ok {
			return nil, fmt.Errorf("eventsync: %s is not a list key", key.Display())
		}
		params = p
	}
	list, err := c.api.FetchEventList(ctx, params)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func asEvent(v any) (*events.Event, error) {
	event, ok := v.(*events.Event)
	if !ok || event == nil {
		return nil, fmt.Errorf("eventsync: unexpected event value %T", v)
	}
	return event.Clone(), nil
}

func asList(v any) (*events.EventList, error) {
	list, ok := v.(*events.EventList)
	if !ok || list == nil {
		return nil, fmt.Errorf("eventsync: unexpected list value %T", v)
	}
	return cloneList(list), nil
}

func cloneList(list *events.EventList) *events.EventList {
	out := *list
	out.Events = make([]events.Event, 0, len(list.Events)+1)
	for i := range list.Events {
		out.Events = append(out.Events, *list.Events[i].Clone())
	}
	return &out
}
