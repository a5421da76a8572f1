package models

import (
	"gorm.io/datatypes"

	"github.com/jaemin-s/eventsync/pkg/events"
)

// EventMetadata is the revision block served as `_metadata`.
type EventMetadata struct {
	Version        int    `json:"version"`
	LastModifiedBy string `json:"last_modified_by"`
}

// Event is the persisted form of an event.
type Event struct {
	BaseModel

	Title       string                            `gorm:"size:200;not null" json:"title"`
	Status      string                            `gorm:"size:16;not null;index;default:draft" json:"status"`
	OrganizerID string                            `gorm:"size:64;not null;index" json:"organizer_id"`
	Metadata    datatypes.JSONType[EventMetadata] `json:"_metadata"`
}

// Revise bumps the revision and records who made the change.
func (e *Event) Revise(actor string) {
	meta := e.Metadata.Data()
	meta.Version++
	if actor != "" {
		meta.LastModifiedBy = actor
	}
	e.Metadata = datatypes.NewJSONType(meta)
}

// ToAPI converts the row into its wire representation.
func (e *Event) ToAPI() events.Event {
	meta := e.Metadata.Data()
	return events.Event{
		ID:          e.ID,
		Title:       e.Title,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
		Status:      events.Status(e.Status),
		OrganizerID: e.OrganizerID,
		Metadata: &events.Metadata{
			Version:        meta.Version,
			LastModifiedBy: meta.LastModifiedBy,
		},
	}
}
