package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/foxxcyber/loan-tracker/internal/config"
	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/handlers"
	"github.com/foxxcyber/loan-tracker/internal/middleware"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	notifier := services.NewNotifier()

	// Stats cache (optional)
	var statsCache *services.StatsCache
	if cfg.RedisURL != "" {
		redisClient, err := services.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Stats cache disabled: %v", err)
		} else {
			defer redisClient.Close()
			statsCache = services.NewStatsCache(redisClient, cfg.StatsCacheTTL)
			statsCache.Subscribe(notifier)
			log.Println("Stats cache initialized")
		}
	}

	// Image storage (optional)
	var storageService *services.StorageService
	if cfg.StorageEnabled() {
		storageService, err = services.NewStorageService(
			cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL, cfg.S3URLExpiry,
		)
		if err != nil {
			log.Printf("Warning: Failed to initialize storage service: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := storageService.EnsureBucket(ctx); err != nil {
				log.Printf("Warning: Failed to ensure S3 bucket exists: %v", err)
			}
			cancel()
			storageService.Subscribe(notifier)
			log.Println("Image storage initialized")
		}
	} else {
		log.Println("S3 credentials not configured, image uploads disabled")
	}

	// Label OCR (optional)
	var scanner *services.LabelScanService
	if cfg.OCREnabled {
		ocrService, err := services.NewOCRService()
		if err != nil {
			log.Printf("Warning: Failed to initialize OCR service: %v", err)
		} else {
			defer ocrService.Close()
			scanner = services.NewLabelScanService(ocrService, db)
			log.Println("Label scanning initialized")
		}
	}

	notifier.Loans.Subscribe(func(e services.LoanChanged) {
		log.Printf("loan changed: event %d item %d", e.EventID, e.ItemID)
	})

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    12 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Create handler with dependencies
	h := handlers.New(db, cfg, loc, handlers.Services{
		Importer: services.NewImportService(db, cfg.ImportCheckConcurrency, notifier),
		Stats:    services.NewStatsService(db, storageService, statsCache, loc),
		Scanner:  scanner,
		Storage:  storageService,
		Notifier: notifier,
	})

	importLimiter := middleware.NewRateLimiter(cfg.ImportRatePerSecond, cfg.ImportRateBurst)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	importLimiter.StartCleanup(time.Minute, stopCleanup)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API routes
	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Get("/me", middleware.AuthRequired(cfg), h.GetCurrentUser)
	auth.Post("/refresh", middleware.AuthRequired(cfg), h.RefreshToken)
	auth.Put("/password", middleware.AuthRequired(cfg), h.ChangePassword)

	authRequired := middleware.AuthRequired(cfg)

	// Profile routes
	api.Put("/profile", authRequired, h.UpsertProfile)
	api.Post("/profile/avatar", authRequired, h.UploadAvatar)

	api.Get("/dashboard", authRequired, h.GetDashboard)

	// Item routes
	items := api.Group("/items", authRequired)
	items.Get("/", h.ListItems)
	items.Get("/lookup/:external_id", h.LookupItem)
	items.Post("/scan-label", h.ScanLabel)
	items.Get("/:id", h.GetItem)
	items.Post("/", h.CreateItem)
	items.Put("/:id", h.UpdateItem)
	items.Delete("/:id", h.DeleteItem)
	items.Post("/:id/image", h.UploadItemImage)

	// Import routes, rate limited per principal
	imports := api.Group("/import", authRequired, importLimiter.Handler())
	imports.Get("/template", h.ImportTemplate)
	imports.Post("/validate", h.ValidateImport)
	imports.Post("/commit", h.CommitImport)

	// Event routes
	events := api.Group("/events", authRequired)
	events.Get("/", h.ListEvents)
	events.Post("/", h.CreateEvent)
	events.Get("/:id", h.GetEvent)
	events.Put("/:id", h.UpdateEvent)
	events.Delete("/:id", h.DeleteEvent)
	events.Post("/:id/checkout", h.CheckOut)
	events.Post("/:id/checkin", h.CheckIn)
	events.Get("/:id/loans", h.ListLoans)
	events.Get("/:id/stats", h.GetEventStats)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
