package models

import (
	"time"
)

const (
	HoursPerDay  = 24
	SlotsPerHour = 6
	SlotMinutes  = 10
	SlotsPerDay  = HoursPerDay * SlotsPerHour
)

// LoanRecord is the minimal loan shape consumed by the statistics aggregator
type LoanRecord struct {
	ID        int        `json:"id"`
	EventID   int        `json:"event_id"`
	ItemID    int        `json:"item_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// ItemMeta is display data for an item referenced by loan records
type ItemMeta struct {
	Name     string  `json:"name"`
	ImageURL *string `json:"image_url,omitempty"`
}

// ItemStatistic summarizes the loans of one item, or of all items sharing a
// name when merged
type ItemStatistic struct {
	ItemID                 int              `json:"item_id"`
	Name                   string           `json:"name"`
	ImageURL               *string          `json:"image_url,omitempty"`
	LoanCount              int              `json:"loan_count"`
	TotalDurationSeconds   float64          `json:"total_duration_seconds"`
	AverageDurationSeconds float64          `json:"average_duration_seconds"`
	HourlyUsage            [HoursPerDay]int `json:"hourly_usage"`
	SourceItemIDs          []int            `json:"source_item_ids,omitempty"`
}

// SlotRange is an inclusive range of 10-minute slot indexes
type SlotRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// LoanStatistics is the full aggregation result for one event
type LoanStatistics struct {
	PerItem      []ItemStatistic  `json:"per_item"`
	HourlyTotals [SlotsPerDay]int `json:"hourly_totals"`
	ActiveRange  SlotRange        `json:"active_range"`
	Merged       bool             `json:"merged"`
}

// EventStatsResponse is returned by the event statistics endpoint
type EventStatsResponse struct {
	EventID int `json:"event_id"`
	LoanStatistics
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
	Cached    bool   `json:"cached"`
}

// DashboardSummary provides counters for the owner's dashboard
type DashboardSummary struct {
	TotalItems  int            `json:"total_items"`
	TotalEvents int            `json:"total_events"`
	ActiveLoans int            `json:"active_loans"`
	LoansToday  int            `json:"loans_today"`
	Genres      []GenreCount   `json:"genres"`
	RecentLoans []LoanWithItem `json:"recent_loans"`
}

// GenreCount is the number of items registered in a genre
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}
