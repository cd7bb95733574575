package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotEventOwner = errors.New("not the owner of this event")
)

// ListEvents returns the owner's events with loan counters, newest first
func (db *DB) ListEvents(ctx context.Context, ownerID, limit, offset int) ([]*models.EventWithCounts, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT
			e.id, e.owner_id, e.name, e.description, e.starts_at, e.ends_at, e.created_at, e.updated_at,
			COUNT(l.id) AS loan_count,
			COUNT(l.id) FILTER (WHERE l.end_time IS NULL) AS active_loan_count
		FROM events e
		LEFT JOIN loans l ON l.event_id = e.id
		WHERE e.owner_id = $1
		GROUP BY e.id
		ORDER BY e.created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventWithCounts
	for rows.Next() {
		e := &models.EventWithCounts{}
		err := rows.Scan(
			&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
			&e.LoanCount, &e.ActiveLoanCount,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}

// GetEventByID retrieves an event and checks ownership
func (db *DB) GetEventByID(ctx context.Context, id, ownerID int) (*models.Event, error) {
	e := &models.Event{}

	err := db.Pool.QueryRow(ctx, `
		SELECT id, owner_id, name, description, starts_at, ends_at, created_at, updated_at
		FROM events
		WHERE id = $1
	`, id).Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if e.OwnerID != ownerID {
		return nil, ErrNotEventOwner
	}

	return e, nil
}

// CreateEvent creates a new event for an owner
func (db *DB) CreateEvent(ctx context.Context, ownerID int, req *models.CreateEventRequest) (*models.Event, error) {
	e := &models.Event{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO events (owner_id, name, description, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, owner_id, name, description, starts_at, ends_at, created_at, updated_at
	`, ownerID, req.Name, req.Description, req.StartsAt, req.EndsAt).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// UpdateEvent updates an owner's event
func (db *DB) UpdateEvent(ctx context.Context, id, ownerID int, req *models.UpdateEventRequest) (*models.Event, error) {
	if _, err := db.GetEventByID(ctx, id, ownerID); err != nil {
		return nil, err
	}

	e := &models.Event{}
	err := db.Pool.QueryRow(ctx, `
		UPDATE events
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    starts_at = COALESCE($4, starts_at),
		    ends_at = COALESCE($5, ends_at),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, owner_id, name, description, starts_at, ends_at, created_at, updated_at
	`, id, req.Name, req.Description, req.StartsAt, req.EndsAt).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	return e, nil
}

// DeleteEvent deletes an owner's event and its loans
func (db *DB) DeleteEvent(ctx context.Context, id, ownerID int) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	return nil
}
