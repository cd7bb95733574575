package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

const maxImageSize = 10 * 1024 * 1024

// UpsertProfile creates or updates the caller's profile
// PUT /api/profile
func (h *Handler) UpsertProfile(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req models.UpsertProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.DisplayName)
	if len(name) < 1 || len(name) > 50 {
		return Error(c, fiber.StatusBadRequest, "display name must be between 1 and 50 characters")
	}

	profile, err := h.db.UpsertProfile(c.Context(), userID, name)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return Error(c, fiber.StatusNotFound, "user not found")
		}
		return Error(c, fiber.StatusInternalServerError, "failed to save profile")
	}

	h.resolveAvatar(c, profile)
	return Success(c, profile)
}

// UploadAvatar stores a new profile picture
// POST /api/profile/avatar
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	key, err := h.uploadFormImage(c, func(contentType string) (string, error) {
		return services.AvatarKey(userID, contentType)
	})
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}

	previous, err := h.db.SetProfileAvatar(c.Context(), userID, key)
	if err != nil {
		h.storage.DeleteReplaced(c.Context(), &key)
		return Error(c, fiber.StatusInternalServerError, "failed to save avatar")
	}

	h.notifier.ProfileImages.Publish(services.ProfileImageChanged{
		UserID:      userID,
		ImageKey:    key,
		PreviousKey: previous,
	})

	profile, err := h.db.GetProfile(c.Context(), userID)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to load profile")
	}

	h.resolveAvatar(c, profile)
	return Success(c, profile)
}

// uploadFormImage stores the multipart "image" field under the key chosen
// by keyFn. When the returned key is empty an error response was already sent.
func (h *Handler) uploadFormImage(c *fiber.Ctx, keyFn func(contentType string) (string, error)) (string, error) {
	if h.storage == nil {
		return "", Error(c, fiber.StatusServiceUnavailable, "image storage is not configured")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return "", Error(c, fiber.StatusBadRequest, "image file is required")
	}

	if file.Size > maxImageSize {
		return "", Error(c, fiber.StatusBadRequest, "file too large. Maximum size is 10MB")
	}

	contentType := file.Header.Get("Content-Type")
	key, err := keyFn(contentType)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedImageType) {
			return "", Error(c, fiber.StatusBadRequest, "invalid image type. Supported: JPEG, PNG, WebP")
		}
		return "", Error(c, fiber.StatusInternalServerError, "failed to prepare upload")
	}

	src, err := file.Open()
	if err != nil {
		return "", Error(c, fiber.StatusInternalServerError, "failed to read file")
	}
	defer src.Close()

	if _, err := h.storage.Upload(c.Context(), key, src, file.Size, contentType); err != nil {
		log.Printf("upload %s failed: %v", key, err)
		return "", Error(c, fiber.StatusInternalServerError, "failed to upload image")
	}

	return key, nil
}

func (h *Handler) resolveAvatar(c *fiber.Ctx, profile *models.Profile) {
	if profile == nil {
		return
	}
	profile.AvatarURL = h.storage.ResolveImageURL(c.Context(), profile.AvatarKey, nil)
}

func (h *Handler) resolveItemImage(c *fiber.Ctx, item *models.Item) {
	item.ImageURL = h.storage.ResolveImageURL(c.Context(), item.ImageKey, item.ImageURL)
}
