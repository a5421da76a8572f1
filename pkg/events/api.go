package events

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/jaemin-s/eventsync/pkg/gateway"
)

// Fallback messages used when a failed response does not carry its own.
const (
	MsgFetchEvent  = "Could not fetch event."
	MsgFetchEvents = "Could not fetch events."
	MsgCreateEvent = "Could not create event."
	MsgUpdateEvent = "Could not update event."
	MsgDeleteEvent = "Could not delete event."
)

// ErrMissingID is returned before any request is made when an id is blank.
var ErrMissingID = errors.New("events: id is required")

// API calls the events endpoints through a gateway client.
type API struct {
	client *gateway.Client
}

// NewAPI wraps client.
func NewAPI(client *gateway.Client) *API {
	return &API{client: client}
}

type eventEnvelope struct {
	Event *Event `json:"event"`
}

// FetchEvent loads a single event.
func (a *API) FetchEvent(ctx context.Context, id string) (*Event, error) {
	path, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	var env eventEnvelope
	if err := a.client.Get(ctx, path, &env, gateway.WithFallback(MsgFetchEvent)); err != nil {
		return nil, err
	}
	if env.Event == nil {
		return nil, errors.New(MsgFetchEvent)
	}
	return env.Event, nil
}

// FetchEventList loads a page of events.
func (a *API) FetchEventList(ctx context.Context, params ListParams) (*EventList, error) {
	query := url.Values{}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(params.PerPage))
	}

	var list EventList
	if err := a.client.Get(ctx, Collection, &list, gateway.WithFallback(MsgFetchEvents), gateway.WithQuery(query)); err != nil {
		return nil, err
	}
	if list.Events == nil {
		list.Events = []Event{}
	}
	return &list, nil
}

// CreateEvent posts a new event and returns the stored record.
func (a *API) CreateEvent(ctx context.Context, input CreateInput) (*Event, error) {
	var env eventEnvelope
	if err := a.client.Post(ctx, Collection, input, &env, gateway.WithFallback(MsgCreateEvent)); err != nil {
		return nil, err
	}
	if env.Event == nil {
		return nil, errors.New(MsgCreateEvent)
	}
	return env.Event, nil
}

// UpdateEvent applies a partial update.
func (a *API) UpdateEvent(ctx context.Context, id string, input UpdateInput) (*Event, error) {
	path, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	var env eventEnvelope
	if err := a.client.Put(ctx, path, input, &env, gateway.WithFallback(MsgUpdateEvent)); err != nil {
		return nil, err
	}
	if env.Event == nil {
		return nil, errors.New(MsgUpdateEvent)
	}
	return env.Event, nil
}

// DeleteEvent removes an event and returns the id the server reports as deleted. A response
// without a body falls back to the requested id.
func (a *API) DeleteEvent(ctx context.Context, id string) (*DeleteResult, error) {
	path, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	var res DeleteResult
	if err := a.client.Delete(ctx, path, &res, gateway.WithFallback(MsgDeleteEvent)); err != nil {
		return nil, err
	}
	if res.ID == "" {
		res.ID = strings.TrimSpace(id)
	}
	return &res, nil
}

// itemPath returns the escaped path of one event; the gateway sends it as is.
func itemPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingID
	}
	return Collection + "/" + url.PathEscape(id), nil
}
