package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

// SortKey selects the column per-item statistics are ranked by
type SortKey string

const (
	SortByLoanCount       SortKey = "loan_count"
	SortByTotalDuration   SortKey = "total_duration"
	SortByAverageDuration SortKey = "average_duration"
	SortByItemID          SortKey = "item_id"
	SortByName            SortKey = "name"
)

// SortOrder is the direction of a ranking
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortKey validates a sort key from a query string
func ParseSortKey(s string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(s))); key {
	case SortByLoanCount, SortByTotalDuration, SortByAverageDuration, SortByItemID, SortByName:
		return key, nil
	case "":
		return SortByLoanCount, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// ParseSortOrder validates a sort order from a query string
func ParseSortOrder(s string) (SortOrder, error) {
	switch order := SortOrder(strings.ToLower(strings.TrimSpace(s))); order {
	case SortAsc, SortDesc:
		return order, nil
	case "":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Aggregate computes per-item loan statistics and the 10-minute usage series
// of one event. Hours and minutes are taken in loc.
//
// Only completed loans (end present and not before start) contribute to
// durations and to the hourly histogram; every record counts towards
// LoanCount and towards the event-wide series.
func Aggregate(records []models.LoanRecord, meta map[int]models.ItemMeta, mergeByName bool, loc *time.Location) models.LoanStatistics {
	if loc == nil {
		loc = time.Local
	}

	var result models.LoanStatistics

	perItem := make([]models.ItemStatistic, 0)
	index := make(map[int]int)

	for _, r := range records {
		i, ok := index[r.ItemID]
		if !ok {
			stat := models.ItemStatistic{ItemID: r.ItemID}
			if m, found := meta[r.ItemID]; found {
				stat.Name = m.Name
				stat.ImageURL = m.ImageURL
			}
			perItem = append(perItem, stat)
			i = len(perItem) - 1
			index[r.ItemID] = i
		}

		stat := &perItem[i]
		stat.LoanCount++

		start := r.StartTime.In(loc)
		result.HourlyTotals[(start.Hour()*60+start.Minute())/models.SlotMinutes]++

		if r.EndTime == nil {
			continue
		}
		if r.EndTime.Before(r.StartTime) {
			log.Printf("stats: loan %d of item %d ends before it starts, duration skipped", r.ID, r.ItemID)
			continue
		}

		stat.TotalDurationSeconds += r.EndTime.Sub(r.StartTime).Seconds()
		stat.HourlyUsage[start.Hour()]++
	}

	if mergeByName {
		perItem = mergeStatisticsByName(perItem, meta)
		result.Merged = true
	}

	for i := range perItem {
		perItem[i].AverageDurationSeconds = averageDuration(perItem[i].TotalDurationSeconds, perItem[i].LoanCount)
	}

	result.PerItem = perItem
	result.ActiveRange = activeRange(result.HourlyTotals[:])

	return result
}

func averageDuration(total float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// mergeKey identifies a merged row. Items without metadata keep their own row.
type mergeKey struct {
	name   string
	itemID int
}

func mergeStatisticsByName(perItem []models.ItemStatistic, meta map[int]models.ItemMeta) []models.ItemStatistic {
	merged := make([]models.ItemStatistic, 0, len(perItem))
	index := make(map[mergeKey]int)

	for _, stat := range perItem {
		key := mergeKey{itemID: stat.ItemID}
		if m, ok := meta[stat.ItemID]; ok {
			key = mergeKey{name: m.Name}
		}

		i, ok := index[key]
		if !ok {
			row := stat
			row.SourceItemIDs = []int{stat.ItemID}
			merged = append(merged, row)
			index[key] = len(merged) - 1
			continue
		}

		row := &merged[i]
		row.LoanCount += stat.LoanCount
		row.TotalDurationSeconds += stat.TotalDurationSeconds
		for h := range row.HourlyUsage {
			row.HourlyUsage[h] += stat.HourlyUsage[h]
		}
		row.SourceItemIDs = append(row.SourceItemIDs, stat.ItemID)
		if row.ImageURL == nil {
			row.ImageURL = stat.ImageURL
		}
	}

	for i := range merged {
		sort.Ints(merged[i].SourceItemIDs)
		merged[i].ItemID = merged[i].SourceItemIDs[0]
	}

	return merged
}

// activeRange returns the first and last non-zero slot; an all-zero series
// collapses to the single point 0
func activeRange(slots []int) models.SlotRange {
	first, last := -1, -1
	for i, v := range slots {
		if v == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return models.SlotRange{}
	}
	return models.SlotRange{First: first, Last: last}
}

// SortStatistics returns a copy of stats ordered by key. Ties keep their
// input order.
func SortStatistics(stats []models.ItemStatistic, by SortKey, order SortOrder) []models.ItemStatistic {
	sorted := make([]models.ItemStatistic, len(stats))
	copy(sorted, stats)

	cmp := func(a, b *models.ItemStatistic) int {
		switch by {
		case SortByTotalDuration:
			return compareFloat(a.TotalDurationSeconds, b.TotalDurationSeconds)
		case SortByAverageDuration:
			return compareFloat(a.AverageDurationSeconds, b.AverageDurationSeconds)
		case SortByItemID:
			return a.ItemID - b.ItemID
		case SortByName:
			return strings.Compare(a.Name, b.Name)
		default:
			return a.LoanCount - b.LoanCount
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		c := cmp(&sorted[i], &sorted[j])
		if order == SortAsc {
			return c < 0
		}
		return c > 0
	})

	return sorted
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
