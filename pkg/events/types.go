// Package events holds the wire types of the events collection and a typed client for its endpoints.
package events

import (
	"strings"
	"time"
)

// Collection is the path segment and query key root of the events resource.
const Collection = "events"

// Status is the lifecycle state of an event.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

// Creatable reports whether s may be supplied when creating an event. Archived events are only reachable by update.
func (s Status) Creatable() bool {
	return s == StatusDraft || s == StatusPublished
}

// ParseStatus normalises user input into a Status.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Metadata is the server-maintained revision block sent as `_metadata`.
type Metadata struct {
	Version        int    `json:"version"`
	LastModifiedBy string `json:"last_modified_by"`
}

// Event is the server-owned record. JSON tags carry the snake_case wire names.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Status      Status    `json:"status"`
	OrganizerID string    `json:"organizer_id"`
	Metadata    *Metadata `json:"_metadata,omitempty"`
}

// Clone returns a deep copy so cached values are never aliased by callers.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cpy := *e
	if e.Metadata != nil {
		meta := *e.Metadata
		cpy.Metadata = &meta
	}
	return &cpy
}

// Apply returns a copy of e with the update fields merged in.
func (e *Event) Apply(in UpdateInput) *Event {
	out := e.Clone()
	if out == nil {
		out = &Event{}
	}
	if in.Title != nil {
		out.Title = strings.TrimSpace(*in.Title)
	}
	if in.Status != nil {
		out.Status = *in.Status
	}
	return out
}

// EventList is the list payload, including pagination when the server sends it.
type EventList struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// Find returns the event with the given id, if listed.
func (l *EventList) Find(id string) (*Event, bool) {
	if l == nil {
		return nil, false
	}
	for i := range l.Events {
		if l.Events[i].ID == id {
			return &l.Events[i], true
		}
	}
	return nil, false
}

// ListParams selects a page of the collection. Zero values let the server pick defaults.
type ListParams struct {
	Page    int
	PerPage int
}

// CreateInput is the body of POST /events.
type CreateInput struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Status      Status `json:"status,omitempty" validate:"omitempty,enum"`
	OrganizerID string `json:"organizer_id" validate:"required,max=64"`
}

// UpdateInput is the body of PUT /events/{id}. Nil fields are left unchanged.
type UpdateInput struct {
	Title  *string `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Status *Status `json:"status,omitempty" validate:"omitempty,enum"`
}

// DeleteResult is the body returned by DELETE /events/{id}.
type DeleteResult struct {
	ID string `json:"id"`
}
