package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jaemin-s/eventsync/internal/models"
	"github.com/jaemin-s/eventsync/pkg/events"
)

var (
	// ErrEventNotFound indicates the requested event does not exist.
	ErrEventNotFound = errors.New("event service: event not found")
	// ErrInvalidStatus indicates a status the operation does not accept.
	ErrInvalidStatus = errors.New("event service: invalid status")
	// ErrBlankTitle indicates a title that is empty once trimmed.
	ErrBlankTitle = errors.New("event service: title must not be blank")
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Change kinds reported to the ChangeNotifier.
const (
	ChangeCreated = "event.created"
	ChangeUpdated = "event.updated"
	ChangeDeleted = "event.deleted"
)

// ChangeNotifier is told about every committed write.
type ChangeNotifier interface {
	EventChanged(kind, id string)
}

// EventService manages CRUD operations for events.
type EventService struct {
	db       *gorm.DB
	notifier ChangeNotifier
}

// NewEventService constructs an event service once a database handle is supplied. notifier may be nil.
func NewEventService(db *gorm.DB, notifier ChangeNotifier) (*EventService, error) {
	if db == nil {
		return nil, errors.New("event service: db is required")
	}
	return &EventService{db: db, notifier: notifier}, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// ListEventsOptions selects a page of events.
type ListEventsOptions struct {
	Page        int
	PerPage     int
	Status      string
	OrganizerID string
}

// EventPage is one page of events with the total across all pages.
type EventPage struct {
	Events  []models.Event
	Total   int64
	Page    int
	PerPage int
}

// CreateEventInput captures required fields when creating an event.
type CreateEventInput struct {
	Title       string
	Status      string
	OrganizerID string
	Actor       string
}

// UpdateEventInput describes mutable event fields. A nil pointer indicates no change.
type UpdateEventInput struct {
	Title  *string
	Status *string
	Actor  string
}

// List returns events ordered by creation time, oldest first.
func (s *EventService) List(ctx context.Context, opts ListEventsOptions) (*EventPage, error) {
	ctx = ensuredContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PerPage
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}

	query := s.db.WithContext(ctx).Model(&models.Event{})
	if status := strings.TrimSpace(opts.Status); status != "" {
		if !events.ParseStatus(status).Valid() {
			return nil, ErrInvalidStatus
		}
		query = query.Where("status = ?", string(events.ParseStatus(status)))
	}
	if organizer := strings.TrimSpace(opts.OrganizerID); organizer != "" {
		query = query.Where("organizer_id = ?", organizer)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("event service: count events: %w", err)
	}

	var rows []models.Event
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("event service: list events: %w", err)
	}

	return &EventPage{Events: rows, Total: total, Page: page, PerPage: perPage}, nil
}

// Get retrieves a single event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	ctx = ensuredContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEventNotFound
	}

	var event models.Event
	err := s.db.WithContext(ctx).Take(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event service: get event: %w", err)
	}
	return &event, nil
}

// Create inserts a new event at version 1. An empty status defaults to draft.
func (s *EventService) Create(ctx context.Context, input CreateEventInput) (*models.Event, error) {
	ctx = ensuredContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrBlankTitle
	}

	status := events.StatusDraft
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status = events.ParseStatus(raw)
	}
	if !status.Creatable() {
		return nil, ErrInvalidStatus
	}

	event := models.Event{
		Title:       title,
		Status:      string(status),
		OrganizerID: strings.TrimSpace(input.OrganizerID),
		Metadata: datatypes.NewJSONType(models.EventMetadata{
			Version:        1,
			LastModifiedBy: actorOrOrganizer(input.Actor, input.OrganizerID),
		}),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("event service: create event: %w", err)
	}

	s.notify(ChangeCreated, event.ID)
	return &event, nil
}

// Update applies the non-nil fields and bumps the revision.
func (s *EventService) Update(ctx context.Context, id string, input UpdateEventInput) (*models.Event, error) {
	ctx = ensuredContext(ctx)

	var title string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrBlankTitle
		}
	}

	var status events.Status
	if input.Status != nil {
		status = events.ParseStatus(*input.Status)
		if !status.Valid() {
			return nil, ErrInvalidStatus
		}
	}

	var event models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&event, "id = ?", strings.TrimSpace(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if input.Title != nil {
			event.Title = title
		}
		if input.Status != nil {
			event.Status = string(status)
		}
		event.Revise(input.Actor)

		return tx.Save(&event).Error
	})
	if errors.Is(err, ErrEventNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("event service: update event: %w", err)
	}

	s.notify(ChangeUpdated, event.ID)
	return &event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, id string) error {
	ctx = ensuredContext(ctx)

	id = strings.TrimSpace(id)
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Event{})
	if result.Error != nil {
		return fmt.Errorf("event service: delete event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}

	s.notify(ChangeDeleted, id)
	return nil
}

func (s *EventService) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.EventChanged(kind, id)
	}
}

func actorOrOrganizer(actor, organizer string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return strings.TrimSpace(organizer)
}
