package handlers

import (
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

// ListItems returns a paginated list of the caller's items
func (h *Handler) ListItems(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	limit, offset := pagination(c)
	params := &models.ItemListParams{
		Limit:   limit,
		Offset:  offset,
		OwnerID: userID,
		Search:  strings.TrimSpace(c.Query("search")),
		Genre:   strings.TrimSpace(c.Query("genre")),
	}

	items, total, err := h.db.ListItems(c.Context(), params)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to list items")
	}

	for _, item := range items {
		h.resolveItemImage(c, &item.Item)
	}

	return SuccessWithMeta(c, items, total, params.Limit, params.Offset)
}

// GetItem returns a single item by ID
func (h *Handler) GetItem(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	item, err := h.db.GetItemByID(c.Context(), id, userID)
	if err != nil {
		return itemError(c, err, "failed to get item")
	}

	h.resolveItemImage(c, item)
	return Success(c, item)
}

// LookupItem finds the caller's item by its barcode
// GET /api/items/lookup/:external_id
func (h *Handler) LookupItem(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	externalID := strings.TrimSpace(c.Params("external_id"))
	if !services.IsBarcode(externalID) {
		return Error(c, fiber.StatusBadRequest, services.MsgIDFormat)
	}

	lookup := h.db.LookupItem(c.Context(), userID, externalID)
	switch lookup.State {
	case models.LookupFound:
		h.resolveItemImage(c, lookup.Item)
		return Success(c, lookup.Item)
	case models.LookupNotFound:
		return Error(c, fiber.StatusNotFound, "item not found")
	default:
		return Error(c, fiber.StatusInternalServerError, "failed to look up item")
	}
}

// CreateItem registers a single item with the same rules as an import row
func (h *Handler) CreateItem(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req models.CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	row := models.CandidateItem{
		ExternalID: strings.TrimSpace(req.ExternalID),
		Name:       strings.TrimSpace(req.Name),
		Genre:      strings.TrimSpace(req.Genre),
		Manager:    strings.TrimSpace(req.Manager),
		ImageURL:   req.ImageURL,
	}
	if failed := h.importer.ValidateRow(row); len(failed) > 0 {
		return Error(c, fiber.StatusBadRequest, joinMessages(failed))
	}

	item, err := h.db.CreateItem(c.Context(), userID, &models.NewItem{
		ExternalID: row.ExternalID,
		Name:       row.Name,
		Genre:      row.Genre,
		Manager:    row.Manager,
		ImageURL:   row.ImageURL,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateExternalID) {
			return Error(c, fiber.StatusConflict, services.MsgAlreadyRegistered)
		}
		return Error(c, fiber.StatusInternalServerError, "failed to create item")
	}

	h.notifier.Items.Publish(services.ItemsChanged{OwnerID: userID})

	h.resolveItemImage(c, item)
	return Created(c, item)
}

// UpdateItem updates an item's descriptive fields
func (h *Handler) UpdateItem(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	var req models.UpdateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	for _, field := range []**string{&req.Name, &req.Genre, &req.Manager} {
		if *field != nil {
			trimmed := strings.TrimSpace(**field)
			if trimmed == "" {
				return Error(c, fiber.StatusBadRequest, "fields cannot be empty")
			}
			*field = &trimmed
		}
	}
	if req.Name != nil && len([]rune(*req.Name)) > 50 {
		return Error(c, fiber.StatusBadRequest, services.MsgNameTooLong)
	}
	if req.Genre != nil && len([]rune(*req.Genre)) > 100 {
		return Error(c, fiber.StatusBadRequest, services.MsgGenreTooLong)
	}
	if req.Manager != nil && len([]rune(*req.Manager)) > 100 {
		return Error(c, fiber.StatusBadRequest, services.MsgManagerTooLong)
	}

	item, err := h.db.UpdateItem(c.Context(), id, userID, &req)
	if err != nil {
		return itemError(c, err, "failed to update item")
	}

	h.notifier.Items.Publish(services.ItemsChanged{OwnerID: userID})

	h.resolveItemImage(c, item)
	return Success(c, item)
}

// DeleteItem soft-deletes an item; its loan history is kept
func (h *Handler) DeleteItem(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	if err := h.db.SoftDeleteItem(c.Context(), id, userID); err != nil {
		return itemError(c, err, "failed to delete item")
	}

	h.notifier.Items.Publish(services.ItemsChanged{OwnerID: userID})

	return Success(c, fiber.Map{"message": "item deleted"})
}

// UploadItemImage stores a picture for an item
// POST /api/items/:id/image
func (h *Handler) UploadItemImage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	if _, err := h.db.GetItemByID(c.Context(), id, userID); err != nil {
		return itemError(c, err, "failed to get item")
	}

	key, err := h.uploadFormImage(c, func(contentType string) (string, error) {
		return services.ItemImageKey(userID, id, contentType)
	})
	if err != nil || key == "" {
		return err
	}

	previous, err := h.db.SetItemImage(c.Context(), id, userID, key)
	if err != nil {
		h.storage.DeleteReplaced(c.Context(), &key)
		return itemError(c, err, "failed to save image")
	}
	h.storage.DeleteReplaced(c.Context(), previous)

	h.notifier.Items.Publish(services.ItemsChanged{OwnerID: userID})

	item, err := h.db.GetItemByID(c.Context(), id, userID)
	if err != nil {
		return itemError(c, err, "failed to get item")
	}

	h.resolveItemImage(c, item)
	return Success(c, item)
}

// ScanLabel reads barcode candidates from a photo of a printed label
// POST /api/items/scan-label
func (h *Handler) ScanLabel(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if h.scanner == nil {
		return Error(c, fiber.StatusServiceUnavailable, "label scanning is not available")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return Error(c, fiber.StatusBadRequest, "image file is required")
	}
	if file.Size > maxImageSize {
		return Error(c, fiber.StatusBadRequest, "file too large. Maximum size is 10MB")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to read file")
	}
	defer src.Close()

	imageBytes, err := io.ReadAll(src)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to read file")
	}

	result, err := h.scanner.Scan(c.Context(), userID, imageBytes)
	if err != nil {
		if errors.Is(err, services.ErrOCRUnavailable) {
			return Error(c, fiber.StatusServiceUnavailable, "label scanning is not available")
		}
		if errors.Is(err, services.ErrEmptyImage) {
			return Error(c, fiber.StatusBadRequest, "image is empty")
		}
		return Error(c, fiber.StatusUnprocessableEntity, "could not read label")
	}

	return Success(c, result)
}

func itemError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, database.ErrItemNotFound):
		return Error(c, fiber.StatusNotFound, "item not found")
	case errors.Is(err, database.ErrNotItemOwner):
		return Error(c, fiber.StatusForbidden, "not the owner of this item")
	default:
		return Error(c, fiber.StatusInternalServerError, fallback)
	}
}

// joinMessages renders field failures in a stable order
func joinMessages(failed map[string]string) string {
	messages := make([]string, 0, len(failed))
	for _, msg := range failed {
		messages = append(messages, msg)
	}
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}
