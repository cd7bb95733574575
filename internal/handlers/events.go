package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/models"
)

// ListEvents returns the caller's events with loan counters
func (h *Handler) ListEvents(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit, offset := pagination(c)

	events, total, err := h.db.ListEvents(c.Context(), userID, limit, offset)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list events")
	}
	if events == nil {
		events = []*models.EventWithCounts{}
	}

	return SuccessWithMeta(c, events, total, limit, offset)
}

// GetEvent returns a single event
func (h *Handler) GetEvent(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	event, err := h.db.GetEventByID(c.Context(), id, userID)
	if err != nil {
		return eventError(c, err, "failed to get event")
	}

	return Success(c, event)
}

// CreateEvent creates an event owned by the caller
func (h *Handler) CreateEvent(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req models.CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return Error(c, fiber.StatusBadRequest, "name is required")
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return Error(c, fiber.StatusBadRequest, "event cannot end before it starts")
	}

	event, err := h.db.CreateEvent(c.Context(), userID, &req)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to create event")
	}

	return Created(c, event)
}

// UpdateEvent updates an event
func (h *Handler) UpdateEvent(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var req models.UpdateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		req.Name = &name
	}

	event, err := h.db.UpdateEvent(c.Context(), id, userID, &req)
	if err != nil {
		return eventError(c, err, "failed to update event")
	}

	return Success(c, event)
}

// DeleteEvent deletes an event together with its loans
func (h *Handler) DeleteEvent(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	if err := h.db.DeleteEvent(c.Context(), id, userID); err != nil {
		return eventError(c, err, "failed to delete event")
	}

	return Success(c, fiber.Map{"message": "event deleted"})
}

func eventError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, database.ErrEventNotFound):
		return Error(c, fiber.StatusNotFound, "event not found")
	case errors.Is(err, database.ErrNotEventOwner):
		return Error(c, fiber.StatusForbidden, "not the owner of this event")
	default:
		return Error(c, fiber.StatusInternalServerError, fallback)
	}
}
