package services

import (
	"context"
	"log"
	"time"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

// LoanSource provides the loan history of an owner's events
type LoanSource interface {
	GetEventByID(ctx context.Context, id, ownerID int) (*models.Event, error)
	LoanRecordsForEvent(ctx context.Context, eventID int) ([]models.LoanRecord, []*models.Item, error)
}

// ImageResolver turns a stored image into a URL the client can load
type ImageResolver interface {
	ResolveImageURL(ctx context.Context, key, external *string) *string
}

// StatsService computes event statistics, memoized per event
type StatsService struct {
	source LoanSource
	images ImageResolver
	cache  *StatsCache
	loc    *time.Location
}

// NewStatsService creates a statistics service. cache and images may be nil.
func NewStatsService(source LoanSource, images ImageResolver, cache *StatsCache, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{
		source: source,
		images: images,
		cache:  cache,
		loc:    loc,
	}
}

// EventStats returns the sorted statistics of an owner's event
func (s *StatsService) EventStats(ctx context.Context, ownerID, eventID int, merge bool, by SortKey, order SortOrder) (*models.EventStatsResponse, error) {
	if _, err := s.source.GetEventByID(ctx, eventID, ownerID); err != nil {
		return nil, err
	}

	resp := &models.EventStatsResponse{
		EventID:   eventID,
		SortBy:    string(by),
		SortOrder: string(order),
	}

	stats, err := s.cache.Get(ctx, ownerID, eventID, merge)
	if err != nil {
		log.Printf("stats: cache read for event %d failed: %v", eventID, err)
	}

	if stats != nil {
		resp.Cached = true
	} else {
		stats, err = s.compute(ctx, eventID, merge)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, ownerID, eventID, merge, stats); err != nil {
			log.Printf("stats: cache write for event %d failed: %v", eventID, err)
		}
	}

	resp.LoanStatistics = *stats
	resp.PerItem = SortStatistics(stats.PerItem, by, order)

	return resp, nil
}

func (s *StatsService) compute(ctx context.Context, eventID int, merge bool) (*models.LoanStatistics, error) {
	records, items, err := s.source.LoanRecordsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	meta := make(map[int]models.ItemMeta, len(items))
	for _, item := range items {
		m := models.ItemMeta{Name: item.Name}
		if s.images != nil {
			m.ImageURL = s.images.ResolveImageURL(ctx, item.ImageKey, item.ImageURL)
		} else {
			m.ImageURL = item.ImageURL
		}
		meta[item.ID] = m
	}

	stats := Aggregate(records, meta, merge, s.loc)
	return &stats, nil
}
