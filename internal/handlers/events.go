package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jaemin-s/eventsync/internal/middleware"
	"github.com/jaemin-s/eventsync/internal/services"
	apperrors "github.com/jaemin-s/eventsync/pkg/errors"
	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/response"
)

// EventHandler serves the events collection.
type EventHandler struct {
	svc *services.EventService
}

func NewEventHandler(svc *services.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// List handles GET /events.
func (h *EventHandler) List(c *gin.Context) {
	page, err := h.svc.List(requestContext(c), services.ListEventsOptions{
		Page:        parseIntQuery(c, "page", 1),
		PerPage:     parseIntQuery(c, "per_page", services.DefaultPerPage),
		Status:      c.Query("status"),
		OrganizerID: c.Query("organizer_id"),
	})
	if err != nil {
		response.Error(c, mapEventError(err))
		return
	}

	items := make([]events.Event, 0, len(page.Events))
	for i := range page.Events {
		items = append(items, page.Events[i].ToAPI())
	}
	response.Collection(c, events.Collection, items, response.Page{
		Total:   int(page.Total),
		Page:    page.Page,
		PerPage: page.PerPage,
	})
}

// Get handles GET /events/:id.
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, mapEventError(err))
		return
	}
	response.Resource(c, http.StatusOK, "event", event.ToAPI())
}

// Create handles POST /events.
func (h *EventHandler) Create(c *gin.Context) {
	var input events.CreateInput
	if !bindAndValidate(c, &input) {
		return
	}

	event, err := h.svc.Create(requestContext(c), services.CreateEventInput{
		Title:       input.Title,
		Status:      string(input.Status),
		OrganizerID: input.OrganizerID,
		Actor:       actor(c),
	})
	if err != nil {
		response.Error(c, mapEventError(err))
		return
	}
	response.Resource(c, http.StatusCreated, "event", event.ToAPI())
}

// Update handles PUT /events/:id.
func (h *EventHandler) Update(c *gin.Context) {
	var input events.UpdateInput
	if !bindAndValidate(c, &input) {
		return
	}
	if input.Title == nil && input.Status == nil {
		response.Error(c, apperrors.NewBadRequest("nothing to update"))
		return
	}

	update := services.UpdateEventInput{Title: input.Title, Actor: actor(c)}
	if input.Status != nil {
		status := string(*input.Status)
		update.Status = &status
	}

	event, err := h.svc.Update(requestContext(c), c.Param("id"), update)
	if err != nil {
		response.Error(c, mapEventError(err))
		return
	}
	response.Resource(c, http.StatusOK, "event", event.ToAPI())
}

// Delete handles DELETE /events/:id.
func (h *EventHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, mapEventError(err))
		return
	}
	response.JSON(c, http.StatusOK, events.DeleteResult{ID: id})
}

func actor(c *gin.Context) string {
	if claims, ok := middleware.ClaimsFrom(c); ok {
		return claims.Actor()
	}
	return ""
}

func mapEventError(err error) error {
	switch {
	case errors.Is(err, services.ErrEventNotFound):
		return apperrors.ErrEventNotFound
	case errors.Is(err, services.ErrInvalidStatus):
		return apperrors.NewValidation("status is not allowed for this operation", err)
	case errors.Is(err, services.ErrBlankTitle):
		return apperrors.NewValidation("title must not be blank", err)
	default:
		return apperrors.FromError(err)
	}
}
