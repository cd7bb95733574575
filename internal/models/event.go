package models

import (
	"time"
)

// Event groups loans, e.g. a club day or a lending session
type Event struct {
	ID          int        `json:"id"`
	OwnerID     int        `json:"owner_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EventWithCounts includes loan counters for list views
type EventWithCounts struct {
	Event
	LoanCount       int `json:"loan_count"`
	ActiveLoanCount int `json:"active_loan_count"`
}

// CreateEventRequest is the request body for creating an event
type CreateEventRequest struct {
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// UpdateEventRequest is the request body for updating an event
type UpdateEventRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}
