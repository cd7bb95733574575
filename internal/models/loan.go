package models

import (
	"time"
)

// Loan is one check-out of an item under an event. EndTime is nil while the
// item is still out.
type Loan struct {
	ID        int        `json:"id"`
	EventID   int        `json:"event_id"`
	ItemID    int        `json:"item_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Active reports whether the loan has not been checked in yet
func (l *Loan) Active() bool {
	return l.EndTime == nil
}

// LoanWithItem includes joined item data for display
type LoanWithItem struct {
	Loan
	ExternalID string  `json:"external_id"`
	ItemName   string  `json:"item_name"`
	ImageKey   *string `json:"-"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// LoanListParams contains parameters for listing loans of an event
type LoanListParams struct {
	EventID    int
	OwnerID    int
	ActiveOnly bool
}

// LoanActionRequest identifies the item for a check-out or check-in,
// either by internal id or by its barcode
type LoanActionRequest struct {
	ItemID     *int    `json:"item_id,omitempty"`
	ExternalID *string `json:"external_id,omitempty"`
}
