package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/loan-tracker/internal/config"
	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

// Handler holds all handler dependencies
type Handler struct {
	db       *database.DB
	cfg      *config.Config
	loc      *time.Location
	importer *services.ImportService
	stats    *services.StatsService
	scanner  *services.LabelScanService
	storage  *services.StorageService
	notifier *services.Notifier
}

// Services are the optional collaborators wired in by the server
type Services struct {
	Importer *services.ImportService
	Stats    *services.StatsService
	Scanner  *services.LabelScanService
	Storage  *services.StorageService
	Notifier *services.Notifier
}

// New creates a new Handler instance
func New(db *database.DB, cfg *config.Config, loc *time.Location, svc Services) *Handler {
	if svc.Notifier == nil {
		svc.Notifier = services.NewNotifier()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		db:       db,
		cfg:      cfg,
		loc:      loc,
		importer: svc.Importer,
		stats:    svc.Stats,
		scanner:  svc.Scanner,
		storage:  svc.Storage,
		notifier: svc.Notifier,
	}
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// APIResponse is a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// Created returns a successful response with status 201
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta returns a successful response with pagination
func SuccessWithMeta(c *fiber.Ctx, data interface{}, total, limit, offset int) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// paramID parses a positive integer route parameter
func paramID(c *fiber.Ctx, name string) (int, bool) {
	id, err := strconv.Atoi(c.Params(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads limit and offset query parameters
func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 50)
	offset = c.QueryInt("offset", 0)
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
