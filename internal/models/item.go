package models

import (
	"time"
)

// Item is a registered, barcode-addressable thing that can be lent out
type Item struct {
	ID         int       `json:"id"`
	OwnerID    int       `json:"owner_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Genre      string    `json:"genre"`
	Manager    string    `json:"manager"`
	ImageKey   *string   `json:"-"`
	ImageURL   *string   `json:"image_url,omitempty"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ItemWithLoanState includes whether the item is currently checked out
type ItemWithLoanState struct {
	Item
	OnLoan        bool `json:"on_loan"`
	ActiveEventID *int `json:"active_event_id,omitempty"`
}

// NewItem is an item ready to be inserted for an owner
type NewItem struct {
	ExternalID string
	Name       string
	Genre      string
	Manager    string
	ImageURL   *string
}

// CreateItemRequest is the request body for registering a single item
type CreateItemRequest struct {
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Genre      string  `json:"genre"`
	Manager    string  `json:"manager"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// UpdateItemRequest is the request body for updating an item
type UpdateItemRequest struct {
	Name    *string `json:"name,omitempty"`
	Genre   *string `json:"genre,omitempty"`
	Manager *string `json:"manager,omitempty"`
}

// ItemListParams contains parameters for listing items
type ItemListParams struct {
	Limit   int
	Offset  int
	OwnerID int
	Search  string // Search by name or external id
	Genre   string
}

// LookupState tells apart the outcomes of a remote item lookup
type LookupState int

const (
	LookupNotFound LookupState = iota
	LookupFound
	LookupFailed
)

func (s LookupState) String() string {
	switch s {
	case LookupNotFound:
		return "not_found"
	case LookupFound:
		return "found"
	case LookupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ItemLookup is the result of looking up an external id for one owner.
// Item is set only for LookupFound and Err only for LookupFailed.
type ItemLookup struct {
	State LookupState
	Item  *Item
	Err   error
}
