package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/models"
)

type fakeLoanSource struct {
	ownerID int
	records []models.LoanRecord
	items   []*models.Item
}

func (f *fakeLoanSource) GetEventByID(ctx context.Context, id, ownerID int) (*models.Event, error) {
	if id != 1 {
		return nil, database.ErrEventNotFound
	}
	if ownerID != f.ownerID {
		return nil, database.ErrNotEventOwner
	}
	return &models.Event{ID: id, OwnerID: ownerID, Name: "Game night"}, nil
}

func (f *fakeLoanSource) LoanRecordsForEvent(ctx context.Context, eventID int) ([]models.LoanRecord, []*models.Item, error) {
	return f.records, f.items, nil
}

type prefixResolver struct{}

func (prefixResolver) ResolveImageURL(ctx context.Context, key, external *string) *string {
	if key == nil {
		return external
	}
	url := "https://signed.example/" + *key
	return &url
}

func TestEventStats(t *testing.T) {
	key := "items/5/1/a.png"
	source := &fakeLoanSource{
		ownerID: 5,
		records: []models.LoanRecord{
			completed(1, 1, at(10, 0), time.Minute),
			completed(2, 2, at(10, 0), time.Minute),
			completed(3, 2, at(11, 0), time.Minute),
		},
		items: []*models.Item{
			{ID: 1, Name: "Azul", ImageKey: &key},
			{ID: 2, Name: "Hanabi"},
		},
	}
	svc := NewStatsService(source, prefixResolver{}, NewStatsCache(nil, time.Minute), time.UTC)

	resp, err := svc.EventStats(context.Background(), 5, 1, false, SortByLoanCount, SortDesc)

	require.NoError(t, err)
	assert.Equal(t, 1, resp.EventID)
	assert.False(t, resp.Cached)
	assert.Equal(t, "loan_count", resp.SortBy)
	assert.Equal(t, "desc", resp.SortOrder)
	require.Len(t, resp.PerItem, 2)
	assert.Equal(t, 2, resp.PerItem[0].ItemID)
	assert.Equal(t, "Azul", resp.PerItem[1].Name)
	require.NotNil(t, resp.PerItem[1].ImageURL)
	assert.Equal(t, "https://signed.example/items/5/1/a.png", *resp.PerItem[1].ImageURL)
	assert.Equal(t, 2, resp.HourlyTotals[60])
}

func TestEventStatsOwnership(t *testing.T) {
	svc := NewStatsService(&fakeLoanSource{ownerID: 5}, nil, nil, nil)

	_, err := svc.EventStats(context.Background(), 6, 1, false, SortByLoanCount, SortDesc)
	assert.ErrorIs(t, err, database.ErrNotEventOwner)

	_, err = svc.EventStats(context.Background(), 5, 2, false, SortByLoanCount, SortDesc)
	assert.ErrorIs(t, err, database.ErrEventNotFound)
}

func TestNilStatsCacheIsANoOp(t *testing.T) {
	var cache *StatsCache
	ctx := context.Background()

	stats, err := cache.Get(ctx, 1, 1, false)
	assert.NoError(t, err)
	assert.Nil(t, stats)
	assert.NoError(t, cache.Set(ctx, 1, 1, false, &models.LoanStatistics{}))
	assert.NoError(t, cache.InvalidateEvent(ctx, 1, 1))
	assert.NoError(t, cache.InvalidateOwner(ctx, 1))
	assert.NotPanics(t, func() { cache.Subscribe(NewNotifier()) })
}

func TestStatsKey(t *testing.T) {
	assert.Equal(t, "stats:3:14:true", statsKey(3, 14, true))
	assert.Equal(t, "stats:3:14:false", statsKey(3, 14, false))
}
