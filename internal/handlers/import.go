package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

const maxImportFileSize = 2 * 1024 * 1024

// ImportTemplate downloads an example CSV file
// GET /api/import/template
func (h *Handler) ImportTemplate(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := services.WriteItemCSVTemplate(&buf); err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to build template")
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="items_template.csv"`)
	return c.Send(buf.Bytes())
}

// ValidateImport checks every row of an upload without storing anything
// POST /api/import/validate
func (h *Handler) ValidateImport(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	rows, err := h.readImportRows(c)
	if err != nil {
		return Error(c, fiber.StatusBadRequest, err.Error())
	}

	validated := h.importer.Validate(c.Context(), rows, userID)
	return Success(c, models.NewImportReport(validated))
}

// CommitImport re-validates the rows and registers the valid ones as one batch
// POST /api/import/commit
func (h *Handler) CommitImport(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	rows, err := h.readImportRows(c)
	if err != nil {
		return Error(c, fiber.StatusBadRequest, err.Error())
	}

	validated := h.importer.Validate(c.Context(), rows, userID)
	report := models.NewImportReport(validated)

	inserted, err := h.importer.Submit(c.Context(), validated, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNothingToImport):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(APIResponse{
				Success: false,
				Data:    report,
				Error:   err.Error(),
			})
		case errors.Is(err, services.ErrAlreadyRegistered):
			return Error(c, fiber.StatusConflict, services.ErrAlreadyRegistered.Error())
		case errors.Is(err, services.ErrInsufficientRights):
			return Error(c, fiber.StatusForbidden, services.ErrInsufficientRights.Error())
		default:
			return Error(c, fiber.StatusInternalServerError, services.ErrImportFailed.Error())
		}
	}

	return Created(c, models.ImportCommitResponse{
		ImportReport: *report,
		Inserted:     inserted,
	})
}

// readImportRows accepts a multipart CSV "file" or a JSON body with rows
func (h *Handler) readImportRows(c *fiber.Ctx) ([]models.CandidateItem, error) {
	maxRows := h.cfg.ImportMaxRows

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err != nil {
			return nil, errors.New("csv file is required")
		}
		if file.Size > maxImportFileSize {
			return nil, errors.New("file too large. Maximum size is 2MB")
		}

		src, err := file.Open()
		if err != nil {
			return nil, errors.New("failed to read file")
		}
		defer src.Close()

		return services.ParseItemsCSV(src, maxRows)
	}

	var req models.ImportRowsRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	if len(req.Rows) == 0 {
		return nil, errors.New("rows are required")
	}
	if len(req.Rows) > maxRows {
		return nil, fmt.Errorf("%w (limit %d)", services.ErrTooManyRows, maxRows)
	}

	for i := range req.Rows {
		if req.Rows[i].Row == 0 {
			req.Rows[i].Row = i + 1
		}
	}

	return req.Rows, nil
}
