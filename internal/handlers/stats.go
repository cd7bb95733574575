package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

// GetEventStats returns per-item loan statistics and the 10-minute usage
// series of an event
// GET /api/events/:id/stats?merge=true&sort_by=loan_count&sort_order=desc
func (h *Handler) GetEventStats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	sortBy, err := services.ParseSortKey(c.Query("sort_by"))
	if err != nil {
		return Error(c, fiber.StatusBadRequest, err.Error())
	}
	sortOrder, err := services.ParseSortOrder(c.Query("sort_order"))
	if err != nil {
		return Error(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.stats.EventStats(c.Context(), userID, id, c.QueryBool("merge", false), sortBy, sortOrder)
	if err != nil {
		return eventError(c, err, "failed to compute statistics")
	}

	return Success(c, stats)
}

// GetDashboard returns counters and recent loans for the caller
// GET /api/dashboard
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	summary, err := h.db.GetDashboardSummary(c.Context(), userID, h.loc)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to load dashboard")
	}

	for i := range summary.RecentLoans {
		l := &summary.RecentLoans[i]
		l.ImageURL = h.storage.ResolveImageURL(c.Context(), l.ImageKey, l.ImageURL)
	}

	return Success(c, summary)
}
