package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxxcyber/loan-tracker/internal/config"
	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

// demoItems is used when no CSV file is given
const demoItems = `item_id,name,genre,manager
4006381333931,Castles of Burgundy,Board games,Sato
73513537,Carcassonne,Board games,Sato
4901234567894,Azul,Board games,Tanaka
49123456,Hanabi,Card games,Tanaka
9780201379624,Codenames,Party games,Suzuki
96385074,Dixit,Party games,Suzuki
`

func main() {
	email := flag.String("email", "demo@example.com", "Demo user email")
	password := flag.String("password", "demo-password", "Demo user password")
	localFile := flag.String("file", "", "CSV file with items to import")
	eventName := flag.String("event", "Demo game night", "Name of the event to create")
	loanCount := flag.Int("loans", 40, "Number of completed loans to generate")
	flag.Parse()

	// Load .env
	godotenv.Load()

	// Load config
	cfg := config.Load()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()

	user, err := ensureUser(ctx, db, *email, *password)
	if err != nil {
		log.Fatalf("Failed to prepare demo user: %v", err)
	}
	log.Printf("Seeding data for %s (user %d)", user.Email, user.ID)

	var reader io.Reader = strings.NewReader(demoItems)
	if *localFile != "" {
		file, err := os.Open(*localFile)
		if err != nil {
			log.Fatalf("Failed to open local file: %v", err)
		}
		defer file.Close()
		reader = file
		log.Printf("Reading from local file: %s", *localFile)
	}

	rows, err := services.ParseItemsCSV(reader, cfg.ImportMaxRows)
	if err != nil {
		log.Fatalf("Failed to parse items: %v", err)
	}

	importer := services.NewImportService(db, cfg.ImportCheckConcurrency, nil)
	validated := importer.Validate(ctx, rows, user.ID)
	for _, row := range validated {
		if !row.IsValid {
			log.Printf("Skipping line %d (%s): %s", row.Row, row.ExternalID, strings.Join(row.Errors, ", "))
		}
	}

	inserted, err := importer.Submit(ctx, validated, user.ID)
	switch {
	case errors.Is(err, services.ErrNothingToImport):
		log.Println("No new items to import")
	case err != nil:
		log.Fatalf("Failed to import items: %v", err)
	default:
		log.Printf("Imported %d item(s)", inserted)
	}

	items, _, err := db.ListItems(ctx, &models.ItemListParams{OwnerID: user.ID, Limit: 1000})
	if err != nil {
		log.Fatalf("Failed to list items: %v", err)
	}
	if len(items) == 0 {
		log.Fatal("No items available for loans")
	}

	event, err := db.CreateEvent(ctx, user.ID, &models.CreateEventRequest{Name: *eventName})
	if err != nil {
		log.Fatalf("Failed to create event: %v", err)
	}

	created := seedLoans(ctx, db, event.ID, items, *loanCount)
	log.Printf("Created event %d with %d loan(s)", event.ID, created)
}

func ensureUser(ctx context.Context, db *database.DB, email, password string) (*models.User, error) {
	user, err := db.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return db.CreateUser(ctx, email, string(hash), "Demo")
}

// seedLoans spreads completed loans over the last evening, one item at a
// time, and leaves one item checked out
func seedLoans(ctx context.Context, db *database.DB, eventID int, items []*models.ItemWithLoanState, count int) int {
	base := time.Now().Add(-6 * time.Hour).Truncate(time.Hour)
	nextFree := make(map[int]time.Time)
	created := 0

	for i := 0; i < count; i++ {
		item := items[rand.IntN(len(items))]
		if item.OnLoan {
			continue
		}

		start := base.Add(time.Duration(rand.IntN(5*60)) * time.Minute)
		if free, ok := nextFree[item.ID]; ok && start.Before(free) {
			start = free.Add(time.Duration(rand.IntN(15)+1) * time.Minute)
		}
		end := start.Add(time.Duration(rand.IntN(90)+10) * time.Minute)
		if end.After(time.Now()) {
			continue
		}

		if _, err := db.RecordLoan(ctx, eventID, item.ID, start, &end); err != nil {
			log.Printf("Warning: Failed to record loan for item %d: %v", item.ID, err)
			continue
		}
		nextFree[item.ID] = end
		created++
	}

	if item := items[0]; !item.OnLoan {
		if _, err := db.CheckOut(ctx, eventID, item.ID); err == nil {
			created++
		}
	}

	return created
}
