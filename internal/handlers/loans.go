package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

// CheckOut lends an item under an event
// POST /api/events/:id/checkout
func (h *Handler) CheckOut(c *fiber.Ctx) error {
	userID, event, item, done := h.loanTarget(c)
	if done != nil || event == nil {
		return done
	}

	loan, err := h.db.CheckOut(c.Context(), event.ID, item.ID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrItemAlreadyOnLoan):
			return Error(c, fiber.StatusConflict, "item is already on loan")
		case errors.Is(err, database.ErrItemNotFound):
			return Error(c, fiber.StatusNotFound, "item not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to check out item")
	}

	h.notifier.Loans.Publish(services.LoanChanged{OwnerID: userID, EventID: event.ID, ItemID: item.ID})

	return Created(c, loan)
}

// CheckIn returns an item lent under an event
// POST /api/events/:id/checkin
func (h *Handler) CheckIn(c *fiber.Ctx) error {
	userID, event, item, done := h.loanTarget(c)
	if done != nil || event == nil {
		return done
	}

	loan, err := h.db.CheckIn(c.Context(), event.ID, item.ID)
	if err != nil {
		if errors.Is(err, database.ErrNoActiveLoan) {
			return Error(c, fiber.StatusConflict, "item has no active loan in this event")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to check in item")
	}

	h.notifier.Loans.Publish(services.LoanChanged{OwnerID: userID, EventID: event.ID, ItemID: item.ID})

	return Success(c, loan)
}

// loanTarget resolves the event from the route and the item from the body.
// A nil event means an error response was already written.
func (h *Handler) loanTarget(c *fiber.Ctx) (int, *models.Event, *models.Item, error) {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return 0, nil, nil, Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var req models.LoanActionRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, nil, nil, Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	event, err := h.db.GetEventByID(c.Context(), id, userID)
	if err != nil {
		return 0, nil, nil, eventError(c, err, "failed to get event")
	}

	var item *models.Item
	switch {
	case req.ItemID != nil:
		item, err = h.db.GetItemByID(c.Context(), *req.ItemID, userID)
	case req.ExternalID != nil:
		externalID := strings.TrimSpace(*req.ExternalID)
		if !services.IsBarcode(externalID) {
			return 0, nil, nil, Error(c, fiber.StatusBadRequest, services.MsgIDFormat)
		}
		item, err = h.db.GetItemByExternalID(c.Context(), userID, externalID)
	default:
		return 0, nil, nil, Error(c, fiber.StatusBadRequest, "item_id or external_id is required")
	}
	if err != nil {
		return 0, nil, nil, itemError(c, err, "failed to get item")
	}

	return userID, event, item, nil
}

// ListLoans returns the loans of an event
// GET /api/events/:id/loans?active=true
func (h *Handler) ListLoans(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	if _, err := h.db.GetEventByID(c.Context(), id, userID); err != nil {
		return eventError(c, err, "failed to get event")
	}

	loans, err := h.db.ListLoans(c.Context(), &models.LoanListParams{
		EventID:    id,
		OwnerID:    userID,
		ActiveOnly: c.QueryBool("active", false),
	})
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list loans")
	}

	for _, l := range loans {
		l.ImageURL = h.storage.ResolveImageURL(c.Context(), l.ImageKey, l.ImageURL)
	}

	return Success(c, loans)
}
