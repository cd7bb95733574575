package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var (
	ErrItemAlreadyOnLoan = errors.New("item is already on loan")
	ErrNoActiveLoan      = errors.New("item has no active loan in this event")
)

// CheckOut starts a loan of a live item under an event
func (db *DB) CheckOut(ctx context.Context, eventID, itemID int) (*models.Loan, error) {
	loan := &models.Loan{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO loans (event_id, item_id, start_time)
		SELECT $1, i.id, NOW()
		FROM items i
		WHERE i.id = $2 AND NOT i.is_deleted
		RETURNING id, event_id, item_id, start_time, end_time
	`, eventID, itemID).Scan(&loan.ID, &loan.EventID, &loan.ItemID, &loan.StartTime, &loan.EndTime)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			return nil, ErrItemAlreadyOnLoan
		case pgForeignKeyViolation:
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return loan, nil
}

// CheckIn ends the active loan of an item under an event
func (db *DB) CheckIn(ctx context.Context, eventID, itemID int) (*models.Loan, error) {
	loan := &models.Loan{}

	err := db.Pool.QueryRow(ctx, `
		UPDATE loans
		SET end_time = GREATEST(NOW(), start_time)
		WHERE event_id = $1 AND item_id = $2 AND end_time IS NULL
		RETURNING id, event_id, item_id, start_time, end_time
	`, eventID, itemID).Scan(&loan.ID, &loan.EventID, &loan.ItemID, &loan.StartTime, &loan.EndTime)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveLoan
		}
		return nil, err
	}

	return loan, nil
}

// ListLoans returns the loans of an event with item details, newest first
func (db *DB) ListLoans(ctx context.Context, params *models.LoanListParams) ([]*models.LoanWithItem, error) {
	query := `
		SELECT l.id, l.event_id, l.item_id, l.start_time, l.end_time,
			i.external_id, i.name, i.image_key, i.image_url
		FROM loans l
		JOIN events e ON e.id = l.event_id
		JOIN items i ON i.id = l.item_id
		WHERE l.event_id = $1 AND e.owner_id = $2`
	if params.ActiveOnly {
		query += ` AND l.end_time IS NULL`
	}
	query += ` ORDER BY l.start_time DESC, l.id DESC`

	rows, err := db.Pool.Query(ctx, query, params.EventID, params.OwnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := []*models.LoanWithItem{}
	for rows.Next() {
		l := &models.LoanWithItem{}
		err := rows.Scan(&l.ID, &l.EventID, &l.ItemID, &l.StartTime, &l.EndTime,
			&l.ExternalID, &l.ItemName, &l.ImageKey, &l.ImageURL)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}

	return loans, rows.Err()
}

// LoanRecordsForEvent returns every loan of an event in start order together
// with the items they reference, including soft-deleted ones
func (db *DB) LoanRecordsForEvent(ctx context.Context, eventID int) ([]models.LoanRecord, []*models.Item, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, event_id, item_id, start_time, end_time
		FROM loans
		WHERE event_id = $1
		ORDER BY start_time ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	records := []models.LoanRecord{}
	for rows.Next() {
		var r models.LoanRecord
		if err := rows.Scan(&r.ID, &r.EventID, &r.ItemID, &r.StartTime, &r.EndTime); err != nil {
			return nil, nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	itemRows, err := db.Pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.id IN (SELECT DISTINCT item_id FROM loans WHERE event_id = $1)
	`, eventID)
	if err != nil {
		return nil, nil, err
	}
	defer itemRows.Close()

	var items []*models.Item
	for itemRows.Next() {
		item := &models.Item{}
		if err := scanItem(itemRows, item); err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	return records, items, itemRows.Err()
}

// GetDashboardSummary returns counters for the owner's dashboard
func (db *DB) GetDashboardSummary(ctx context.Context, ownerID int, loc *time.Location) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{}

	now := time.Now().In(loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM items WHERE owner_id = $1 AND NOT is_deleted),
			(SELECT COUNT(*) FROM events WHERE owner_id = $1),
			(SELECT COUNT(*) FROM loans l JOIN events e ON e.id = l.event_id
				WHERE e.owner_id = $1 AND l.end_time IS NULL),
			(SELECT COUNT(*) FROM loans l JOIN events e ON e.id = l.event_id
				WHERE e.owner_id = $1 AND l.start_time >= $2)
	`, ownerID, startOfDay).Scan(&summary.TotalItems, &summary.TotalEvents, &summary.ActiveLoans, &summary.LoansToday)
	if err != nil {
		return nil, err
	}

	summary.Genres, err = db.ListGenres(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT l.id, l.event_id, l.item_id, l.start_time, l.end_time,
			i.external_id, i.name, i.image_key, i.image_url
		FROM loans l
		JOIN events e ON e.id = l.event_id
		JOIN items i ON i.id = l.item_id
		WHERE e.owner_id = $1
		ORDER BY l.start_time DESC, l.id DESC
		LIMIT 10
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary.RecentLoans = []models.LoanWithItem{}
	for rows.Next() {
		var l models.LoanWithItem
		err := rows.Scan(&l.ID, &l.EventID, &l.ItemID, &l.StartTime, &l.EndTime,
			&l.ExternalID, &l.ItemName, &l.ImageKey, &l.ImageURL)
		if err != nil {
			return nil, err
		}
		summary.RecentLoans = append(summary.RecentLoans, l)
	}

	return summary, rows.Err()
}

// RecordLoan inserts a loan with explicit times, used to backfill history
func (db *DB) RecordLoan(ctx context.Context, eventID, itemID int, start time.Time, end *time.Time) (*models.Loan, error) {
	loan := &models.Loan{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO loans (event_id, item_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id, event_id, item_id, start_time, end_time
	`, eventID, itemID, start, end).Scan(&loan.ID, &loan.EventID, &loan.ItemID, &loan.StartTime, &loan.EndTime)

	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			return nil, ErrItemAlreadyOnLoan
		case pgForeignKeyViolation:
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return loan, nil
}
