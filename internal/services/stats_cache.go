package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

// NewRedisClient connects to the Redis instance at url and pings it
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// StatsCache memoizes aggregated event statistics in Redis. A nil cache
// is valid and never hits.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a cache; a nil client yields a nil cache
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if client == nil {
		return nil
	}
	return &StatsCache{client: client, ttl: ttl}
}

func statsKey(ownerID, eventID int, merge bool) string {
	return fmt.Sprintf("stats:%d:%d:%t", ownerID, eventID, merge)
}

// Get returns cached statistics, or nil on a miss
func (c *StatsCache) Get(ctx context.Context, ownerID, eventID int, merge bool) (*models.LoanStatistics, error) {
	if c == nil {
		return nil, nil
	}

	val, err := c.client.Get(ctx, statsKey(ownerID, eventID, merge)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats from redis: %w", err)
	}

	var stats models.LoanStatistics
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats from redis: %w", err)
	}
	return &stats, nil
}

// Set stores statistics for the configured TTL
func (c *StatsCache) Set(ctx context.Context, ownerID, eventID int, merge bool, stats *models.LoanStatistics) error {
	if c == nil {
		return nil
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, statsKey(ownerID, eventID, merge), statsJSON, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set stats in redis: %w", err)
	}
	return nil
}

// InvalidateEvent drops both merge variants of an event
func (c *StatsCache) InvalidateEvent(ctx context.Context, ownerID, eventID int) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, statsKey(ownerID, eventID, false), statsKey(ownerID, eventID, true)).Err()
}

// InvalidateOwner drops every cached event of an owner
func (c *StatsCache) InvalidateOwner(ctx context.Context, ownerID int) error {
	if c == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, fmt.Sprintf("stats:%d:*", ownerID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan stats keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Subscribe keeps the cache consistent with loan and item changes
func (c *StatsCache) Subscribe(n *Notifier) {
	if c == nil || n == nil {
		return
	}

	n.Loans.Subscribe(func(e LoanChanged) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.InvalidateEvent(ctx, e.OwnerID, e.EventID); err != nil {
			log.Printf("stats cache: failed to invalidate event %d: %v", e.EventID, err)
		}
	})

	// Item names and images feed into every event of the owner
	n.Items.Subscribe(func(e ItemsChanged) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.InvalidateOwner(ctx, e.OwnerID); err != nil {
			log.Printf("stats cache: failed to invalidate owner %d: %v", e.OwnerID, err)
		}
	})
}
