package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var (
	ErrItemNotFound        = errors.New("item not found")
	ErrNotItemOwner        = errors.New("not the owner of this item")
	ErrDuplicateExternalID = errors.New("external id already registered")
)

const itemColumns = `
	i.id, i.owner_id, i.external_id, i.name, i.genre, i.manager,
	i.image_url, i.image_key, i.is_deleted, i.created_at, i.updated_at`

func scanItem(row pgx.Row, item *models.Item, extra ...any) error {
	dest := []any{
		&item.ID, &item.OwnerID, &item.ExternalID, &item.Name, &item.Genre, &item.Manager,
		&item.ImageURL, &item.ImageKey, &item.IsDeleted, &item.CreatedAt, &item.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// classifyItemWriteError maps constraint violations on items to sentinel errors
func classifyItemWriteError(err error) error {
	switch code, constraint := pgErrorCode(err); code {
	case pgUniqueViolation:
		return fmt.Errorf("%w (%s)", ErrDuplicateExternalID, constraint)
	case pgInsufficientPrivilege:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

// ListItems returns a paginated list of the owner's live items
func (db *DB) ListItems(ctx context.Context, params *models.ItemListParams) ([]*models.ItemWithLoanState, int, error) {
	whereClauses := []string{"i.owner_id = $1", "NOT i.is_deleted"}
	args := []interface{}{params.OwnerID}
	argIndex := 2

	if params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(LOWER(i.name) LIKE LOWER($%d) OR i.external_id LIKE $%d)",
			argIndex, argIndex,
		))
		args = append(args, "%"+params.Search+"%")
		argIndex++
	}

	if params.Genre != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("i.genre = $%d", argIndex))
		args = append(args, params.Genre)
		argIndex++
	}

	whereClause := "WHERE " + strings.Join(whereClauses, " AND ")

	// Get total count
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM items i %s", whereClause)
	if err := db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s,
			l.event_id
		FROM items i
		LEFT JOIN loans l ON l.item_id = i.id AND l.end_time IS NULL
		%s
		ORDER BY i.name ASC, i.id ASC
		LIMIT $%d OFFSET $%d
	`, itemColumns, whereClause, argIndex, argIndex+1)

	args = append(args, params.Limit, params.Offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*models.ItemWithLoanState
	for rows.Next() {
		item := &models.ItemWithLoanState{}
		if err := scanItem(rows, &item.Item, &item.ActiveEventID); err != nil {
			return nil, 0, err
		}
		item.OnLoan = item.ActiveEventID != nil
		items = append(items, item)
	}

	return items, total, rows.Err()
}

// GetItemByID retrieves a live item and checks ownership
func (db *DB) GetItemByID(ctx context.Context, id, ownerID int) (*models.Item, error) {
	item := &models.Item{}

	err := scanItem(db.Pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.id = $1 AND NOT i.is_deleted
	`, id), item)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	if item.OwnerID != ownerID {
		return nil, ErrNotItemOwner
	}

	return item, nil
}

// GetItemByExternalID retrieves the owner's live item with the given external id
func (db *DB) GetItemByExternalID(ctx context.Context, ownerID int, externalID string) (*models.Item, error) {
	item := &models.Item{}

	err := scanItem(db.Pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.owner_id = $1 AND i.external_id = $2 AND NOT i.is_deleted
		LIMIT 1
	`, ownerID, externalID), item)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return item, nil
}

// LookupItem reports whether the owner already has a live item with the
// external id. Query failures are returned as LookupFailed, never as an error.
func (db *DB) LookupItem(ctx context.Context, ownerID int, externalID string) models.ItemLookup {
	item, err := db.GetItemByExternalID(ctx, ownerID, externalID)
	switch {
	case err == nil:
		return models.ItemLookup{State: models.LookupFound, Item: item}
	case errors.Is(err, ErrItemNotFound):
		return models.ItemLookup{State: models.LookupNotFound}
	default:
		return models.ItemLookup{State: models.LookupFailed, Err: err}
	}
}

// CreateItem registers a single item for an owner
func (db *DB) CreateItem(ctx context.Context, ownerID int, req *models.NewItem) (*models.Item, error) {
	item := &models.Item{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO items (owner_id, external_id, name, genre, manager, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, owner_id, external_id, name, genre, manager, image_url, image_key, is_deleted, created_at, updated_at
	`, ownerID, req.ExternalID, req.Name, req.Genre, req.Manager, req.ImageURL).Scan(
		&item.ID, &item.OwnerID, &item.ExternalID, &item.Name, &item.Genre, &item.Manager,
		&item.ImageURL, &item.ImageKey, &item.IsDeleted, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, classifyItemWriteError(err)
	}

	return item, nil
}

// InsertItems inserts all items for an owner in a single statement inside a
// transaction scoped to that owner. Either every row is stored or none is.
func (db *DB) InsertItems(ctx context.Context, ownerID int, items []models.NewItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	externalIDs := make([]string, len(items))
	names := make([]string, len(items))
	genres := make([]string, len(items))
	managers := make([]string, len(items))
	imageURLs := make([]*string, len(items))
	for i, it := range items {
		externalIDs[i] = it.ExternalID
		names[i] = it.Name
		genres[i] = it.Genre
		managers[i] = it.Manager
		imageURLs[i] = it.ImageURL
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_user_id', $1, true)`, strconv.Itoa(ownerID)); err != nil {
		return 0, fmt.Errorf("failed to scope import transaction: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO items (owner_id, external_id, name, genre, manager, image_url, created_at, updated_at)
		SELECT $1, t.external_id, t.name, t.genre, t.manager, t.image_url, NOW(), NOW()
		FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::text[])
			AS t(external_id, name, genre, manager, image_url)
	`, ownerID, externalIDs, names, genres, managers, imageURLs)
	if err != nil {
		return 0, classifyItemWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classifyItemWriteError(err)
	}

	return int(tag.RowsAffected()), nil
}

// UpdateItem updates the descriptive fields of an owner's item
func (db *DB) UpdateItem(ctx context.Context, id, ownerID int, req *models.UpdateItemRequest) (*models.Item, error) {
	if _, err := db.GetItemByID(ctx, id, ownerID); err != nil {
		return nil, err
	}

	item := &models.Item{}
	err := db.Pool.QueryRow(ctx, `
		UPDATE items
		SET name = COALESCE($2, name),
		    genre = COALESCE($3, genre),
		    manager = COALESCE($4, manager),
		    updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING id, owner_id, external_id, name, genre, manager, image_url, image_key, is_deleted, created_at, updated_at
	`, id, req.Name, req.Genre, req.Manager).Scan(
		&item.ID, &item.OwnerID, &item.ExternalID, &item.Name, &item.Genre, &item.Manager,
		&item.ImageURL, &item.ImageKey, &item.IsDeleted, &item.CreatedAt, &item.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, classifyItemWriteError(err)
	}

	return item, nil
}

// SetItemImage stores an uploaded image key and returns the previous one
func (db *DB) SetItemImage(ctx context.Context, id, ownerID int, imageKey string) (*string, error) {
	item, err := db.GetItemByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	_, err = db.Pool.Exec(ctx, `
		UPDATE items SET image_key = $2, updated_at = NOW() WHERE id = $1
	`, id, imageKey)
	if err != nil {
		return nil, classifyItemWriteError(err)
	}

	return item.ImageKey, nil
}

// SoftDeleteItem flags an item as deleted; loans referencing it are kept
func (db *DB) SoftDeleteItem(ctx context.Context, id, ownerID int) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE items SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND NOT is_deleted
	`, id, ownerID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

// ListGenres returns item counts per genre for an owner
func (db *DB) ListGenres(ctx context.Context, ownerID int) ([]models.GenreCount, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT genre, COUNT(*)
		FROM items
		WHERE owner_id = $1 AND NOT is_deleted
		GROUP BY genre
		ORDER BY COUNT(*) DESC, genre ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	genres := []models.GenreCount{}
	for rows.Next() {
		var g models.GenreCount
		if err := rows.Scan(&g.Genre, &g.Count); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}

	return genres, rows.Err()
}
