package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/models"
)

// Row validation messages
const (
	MsgIDRequired        = "ID required"
	MsgIDFormat          = "must be 8 or 13 digits"
	MsgDuplicateInFile   = "duplicate within file"
	MsgNameRequired      = "name required"
	MsgNameTooLong       = "name too long"
	MsgGenreRequired     = "genre required"
	MsgGenreTooLong      = "genre too long"
	MsgManagerRequired   = "manager required"
	MsgManagerTooLong    = "manager too long"
	MsgAlreadyRegistered = "already registered by you"
	MsgCheckFailed       = "duplicate-check failed"
)

const DefaultCheckConcurrency = 8

var (
	ErrNothingToImport    = errors.New("no valid rows to import")
	ErrAlreadyRegistered  = errors.New("one or more items are already registered")
	ErrInsufficientRights = errors.New("insufficient rights to register items")
	ErrImportFailed       = errors.New("import failed")
)

var barcodePattern = regexp.MustCompile(`^(\d{8}|\d{13})$`)

// IsBarcode reports whether s is an 8 or 13 digit external id
func IsBarcode(s string) bool {
	return barcodePattern.MatchString(s)
}

// ItemStore is the record store the importer checks and writes against
type ItemStore interface {
	LookupItem(ctx context.Context, ownerID int, externalID string) models.ItemLookup
	InsertItems(ctx context.Context, ownerID int, items []models.NewItem) (int, error)
}

// ImportService validates candidate item rows and submits the valid ones
type ImportService struct {
	store       ItemStore
	validate    *validator.Validate
	concurrency int
	notifier    *Notifier
}

// NewImportService creates an import service. concurrency bounds the number
// of duplicate checks in flight for one batch.
func NewImportService(store ItemStore, concurrency int, notifier *Notifier) *ImportService {
	if concurrency <= 0 {
		concurrency = DefaultCheckConcurrency
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("barcode", func(fl validator.FieldLevel) bool {
		return IsBarcode(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("import: register barcode validation: %v", err))
	}

	return &ImportService{
		store:       store,
		validate:    v,
		concurrency: concurrency,
		notifier:    notifier,
	}
}

// fieldMessages maps validator failures to row messages
var fieldMessages = map[string]map[string]string{
	"ExternalID": {"required": MsgIDRequired, "barcode": MsgIDFormat},
	"Name":       {"required": MsgNameRequired, "max": MsgNameTooLong},
	"Genre":      {"required": MsgGenreRequired, "max": MsgGenreTooLong},
	"Manager":    {"required": MsgManagerRequired, "max": MsgManagerTooLong},
}

// ValidateRow applies the static field rules to one row
func (s *ImportService) ValidateRow(row models.CandidateItem) map[string]string {
	failed := make(map[string]string)

	err := s.validate.Struct(row)
	if err == nil {
		return failed
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		failed["ExternalID"] = err.Error()
		return failed
	}

	for _, fe := range validationErrs {
		if msg, ok := fieldMessages[fe.StructField()][fe.Tag()]; ok {
			failed[fe.StructField()] = msg
		}
	}

	return failed
}

// Validate checks every row against the field rules, against earlier rows of
// the same batch and against the owner's registered items. The result keeps
// input order and never fails as a whole.
func (s *ImportService) Validate(ctx context.Context, rows []models.CandidateItem, ownerID int) []models.ValidatedItem {
	results := make([]models.ValidatedItem, len(rows))
	if len(rows) == 0 {
		return results
	}

	// Static rules and in-file duplicates, in file order, before any remote check.
	seen := make(map[string]bool, len(rows))
	var eligible []int

	for i, row := range rows {
		row = normalizeCandidate(row)
		v := models.ValidatedItem{CandidateItem: row, IsValid: true, Errors: []string{}}

		failed := s.ValidateRow(row)
		if msg, ok := failed["ExternalID"]; ok {
			v.AddError(msg)
		}

		if IsBarcode(row.ExternalID) {
			if seen[row.ExternalID] {
				v.AddError(MsgDuplicateInFile)
			} else {
				seen[row.ExternalID] = true
				eligible = append(eligible, i)
			}
		}

		for _, field := range []string{"Name", "Genre", "Manager"} {
			if msg, ok := failed[field]; ok {
				v.AddError(msg)
			}
		}

		results[i] = v
	}

	// Remote uniqueness checks, concurrently. Each goroutine owns one slot.
	lookups := make([]models.ItemLookup, len(rows))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, i := range eligible {
		g.Go(func() error {
			lookups[i] = s.lookup(ctx, ownerID, results[i].ExternalID)
			return nil
		})
	}
	// Lookups report failures through their result, never through the group.
	_ = g.Wait()

	for _, i := range eligible {
		switch lookups[i].State {
		case models.LookupFound:
			results[i].AddError(MsgAlreadyRegistered)
		case models.LookupFailed:
			log.Printf("import: duplicate check for %s (row %d) failed: %v", results[i].ExternalID, results[i].Row, lookups[i].Err)
			results[i].AddError(MsgCheckFailed)
		case models.LookupNotFound:
		}
	}

	return results
}

func (s *ImportService) lookup(ctx context.Context, ownerID int, externalID string) models.ItemLookup {
	if err := ctx.Err(); err != nil {
		return models.ItemLookup{State: models.LookupFailed, Err: err}
	}
	return s.store.LookupItem(ctx, ownerID, externalID)
}

// Submit inserts every valid row for the owner as one all-or-nothing batch
// and returns the number of stored items
func (s *ImportService) Submit(ctx context.Context, rows []models.ValidatedItem, ownerID int) (int, error) {
	if ownerID == 0 {
		return 0, ErrInsufficientRights
	}

	var items []models.NewItem
	for _, r := range rows {
		if !r.IsValid {
			continue
		}
		items = append(items, models.NewItem{
			ExternalID: r.ExternalID,
			Name:       r.Name,
			Genre:      r.Genre,
			Manager:    r.Manager,
			ImageURL:   r.ImageURL,
		})
	}

	if len(items) == 0 {
		return 0, ErrNothingToImport
	}

	inserted, err := s.store.InsertItems(ctx, ownerID, items)
	if err != nil {
		return 0, classifySubmitError(err)
	}

	log.Printf("import: owner %d registered %d item(s)", ownerID, inserted)
	if s.notifier != nil {
		s.notifier.Items.Publish(ItemsChanged{OwnerID: ownerID})
	}

	return inserted, nil
}

// classifySubmitError narrows a batch failure to the explanation shown to the user
func classifySubmitError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, database.ErrDuplicateExternalID), strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%w: %w", ErrAlreadyRegistered, err)
	case errors.Is(err, database.ErrPermissionDenied), strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %w", ErrInsufficientRights, err)
	default:
		return fmt.Errorf("%w: %w", ErrImportFailed, err)
	}
}

func normalizeCandidate(row models.CandidateItem) models.CandidateItem {
	row.ExternalID = strings.TrimSpace(row.ExternalID)
	row.Name = strings.TrimSpace(row.Name)
	row.Genre = strings.TrimSpace(row.Genre)
	row.Manager = strings.TrimSpace(row.Manager)
	if row.ImageURL != nil {
		url := strings.TrimSpace(*row.ImageURL)
		if url == "" {
			row.ImageURL = nil
		} else {
			row.ImageURL = &url
		}
	}
	return row
}
