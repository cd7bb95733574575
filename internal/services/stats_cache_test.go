package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

func newTestCache(t *testing.T) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewStatsCache(client, time.Minute), mr
}

func sampleStatistics() *models.LoanStatistics {
	stats := &models.LoanStatistics{
		PerItem: []models.ItemStatistic{{
			ItemID:                 3,
			Name:                   "Azul",
			LoanCount:              2,
			TotalDurationSeconds:   180,
			AverageDurationSeconds: 90,
			SourceItemIDs:          []int{3, 8},
		}},
		ActiveRange: models.SlotRange{First: 60, Last: 143},
		Merged:      true,
	}
	stats.PerItem[0].HourlyUsage[10] = 2
	stats.HourlyTotals[60] = 1
	stats.HourlyTotals[143] = 4
	return stats
}

func TestStatsCacheMissThenHit(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	got, err := cache.Get(ctx, 5, 1, true)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := sampleStatistics()
	require.NoError(t, cache.Set(ctx, 5, 1, true, want))

	got, err = cache.Get(ctx, 5, 1, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *want, *got)

	// The other merge variant is a separate entry
	other, err := cache.Get(ctx, 5, 1, false)
	require.NoError(t, err)
	assert.Nil(t, other)

	assert.Equal(t, time.Minute, mr.TTL(statsKey(5, 1, true)))
}

func TestStatsCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 5, 1, false, sampleStatistics()))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, 5, 1, false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatsCacheCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t)

	require.NoError(t, mr.Set(statsKey(5, 1, false), "{not json"))

	got, err := cache.Get(context.Background(), 5, 1, false)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestStatsCacheInvalidateEvent(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	for _, merge := range []bool{false, true} {
		require.NoError(t, cache.Set(ctx, 5, 1, merge, sampleStatistics()))
	}
	require.NoError(t, cache.Set(ctx, 5, 2, false, sampleStatistics()))

	require.NoError(t, cache.InvalidateEvent(ctx, 5, 1))

	assert.False(t, mr.Exists(statsKey(5, 1, false)))
	assert.False(t, mr.Exists(statsKey(5, 1, true)))
	assert.True(t, mr.Exists(statsKey(5, 2, false)))
}

func TestStatsCacheInvalidateOwner(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	for eventID := 1; eventID <= 5; eventID++ {
		require.NoError(t, cache.Set(ctx, 5, eventID, false, sampleStatistics()))
	}
	require.NoError(t, cache.Set(ctx, 6, 1, false, sampleStatistics()))
	// Owner 55 shares the prefix digits but not the key segment
	require.NoError(t, cache.Set(ctx, 55, 1, false, sampleStatistics()))

	require.NoError(t, cache.InvalidateOwner(ctx, 5))

	for eventID := 1; eventID <= 5; eventID++ {
		assert.False(t, mr.Exists(statsKey(5, eventID, false)))
	}
	assert.True(t, mr.Exists(statsKey(6, 1, false)))
	assert.True(t, mr.Exists(statsKey(55, 1, false)))

	// Nothing left to drop
	assert.NoError(t, cache.InvalidateOwner(ctx, 5))
}

func TestStatsCacheFollowsNotifications(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	n := NewNotifier()
	cache.Subscribe(n)

	require.NoError(t, cache.Set(ctx, 5, 1, false, sampleStatistics()))
	require.NoError(t, cache.Set(ctx, 5, 2, false, sampleStatistics()))

	n.Loans.Publish(LoanChanged{OwnerID: 5, EventID: 1, ItemID: 3})
	assert.False(t, mr.Exists(statsKey(5, 1, false)))
	assert.True(t, mr.Exists(statsKey(5, 2, false)))

	n.Items.Publish(ItemsChanged{OwnerID: 5})
	assert.False(t, mr.Exists(statsKey(5, 2, false)))
}

func TestEventStatsServedFromCache(t *testing.T) {
	cache, _ := newTestCache(t)
	n := NewNotifier()
	cache.Subscribe(n)

	source := &fakeLoanSource{
		ownerID: 5,
		records: []models.LoanRecord{
			completed(1, 1, at(10, 0), time.Minute),
			completed(2, 2, at(10, 0), 2*time.Minute),
		},
		items: []*models.Item{{ID: 1, Name: "Azul"}, {ID: 2, Name: "Hanabi"}},
	}
	svc := NewStatsService(source, nil, cache, time.UTC)
	ctx := context.Background()

	first, err := svc.EventStats(ctx, 5, 1, false, SortByLoanCount, SortDesc)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// A change to the source is hidden until the cache is invalidated
	source.records = append(source.records, completed(3, 1, at(11, 0), time.Minute))

	second, err := svc.EventStats(ctx, 5, 1, false, SortByName, SortAsc)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.HourlyTotals, second.HourlyTotals)
	require.Len(t, second.PerItem, 2)
	assert.Equal(t, "Azul", second.PerItem[0].Name)
	assert.Equal(t, 1, second.PerItem[0].LoanCount)

	n.Loans.Publish(LoanChanged{OwnerID: 5, EventID: 1, ItemID: 1})

	third, err := svc.EventStats(ctx, 5, 1, false, SortByName, SortAsc)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, third.PerItem[0].LoanCount)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("not-a-redis-url")
	assert.Error(t, err)
}

func TestNewStatsCacheWithoutClient(t *testing.T) {
	var client *redis.Client
	assert.Nil(t, NewStatsCache(client, time.Minute))
}
