package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func completed(id, itemID int, start time.Time, d time.Duration) models.LoanRecord {
	end := start.Add(d)
	return models.LoanRecord{ID: id, EventID: 1, ItemID: itemID, StartTime: start, EndTime: &end}
}

func open(id, itemID int, start time.Time) models.LoanRecord {
	return models.LoanRecord{ID: id, EventID: 1, ItemID: itemID, StartTime: start}
}

func TestAggregateDurations(t *testing.T) {
	records := []models.LoanRecord{
		completed(1, 7, at(10, 0), 60*time.Second),
		completed(2, 7, at(11, 0), 120*time.Second),
	}
	meta := map[int]models.ItemMeta{7: {Name: "Azul"}}

	stats := Aggregate(records, meta, false, time.UTC)

	require.Len(t, stats.PerItem, 1)
	s := stats.PerItem[0]
	assert.Equal(t, 7, s.ItemID)
	assert.Equal(t, "Azul", s.Name)
	assert.Equal(t, 2, s.LoanCount)
	assert.Equal(t, 180.0, s.TotalDurationSeconds)
	assert.Equal(t, 90.0, s.AverageDurationSeconds)
	assert.Equal(t, 1, s.HourlyUsage[10])
	assert.Equal(t, 1, s.HourlyUsage[11])
	assert.False(t, stats.Merged)
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, nil, false, time.UTC)

	assert.NotNil(t, stats.PerItem)
	assert.Empty(t, stats.PerItem)
	assert.Equal(t, models.SlotRange{First: 0, Last: 0}, stats.ActiveRange)
	for _, v := range stats.HourlyTotals {
		assert.Zero(t, v)
	}
}

func TestAggregateOpenLoan(t *testing.T) {
	stats := Aggregate([]models.LoanRecord{open(1, 3, at(14, 25))}, nil, false, time.UTC)

	require.Len(t, stats.PerItem, 1)
	s := stats.PerItem[0]
	assert.Equal(t, 1, s.LoanCount)
	assert.Zero(t, s.TotalDurationSeconds)
	assert.Zero(t, s.AverageDurationSeconds)
	assert.Equal(t, [models.HoursPerDay]int{}, s.HourlyUsage)

	// Open loans still show up in the event-wide series
	assert.Equal(t, 1, stats.HourlyTotals[14*6+2])
	assert.Equal(t, models.SlotRange{First: 86, Last: 86}, stats.ActiveRange)
}

func TestAggregateEndBeforeStart(t *testing.T) {
	bad := completed(1, 3, at(9, 0), -5*time.Minute)
	good := completed(2, 3, at(9, 30), 10*time.Minute)

	stats := Aggregate([]models.LoanRecord{bad, good}, nil, false, time.UTC)

	require.Len(t, stats.PerItem, 1)
	s := stats.PerItem[0]
	assert.Equal(t, 2, s.LoanCount)
	assert.Equal(t, 600.0, s.TotalDurationSeconds)
	assert.Equal(t, 300.0, s.AverageDurationSeconds)
	assert.Equal(t, 1, s.HourlyUsage[9])
	assert.Equal(t, 1, stats.HourlyTotals[54])
	assert.Equal(t, 1, stats.HourlyTotals[57])
}

func TestAggregateHistogramCountsOnlyCompletedLoans(t *testing.T) {
	records := []models.LoanRecord{
		completed(1, 1, at(10, 5), 5*time.Minute),
		open(2, 1, at(10, 15)),
		completed(3, 1, at(18, 59), time.Minute),
	}

	stats := Aggregate(records, nil, false, time.UTC)

	s := stats.PerItem[0]
	assert.Equal(t, 3, s.LoanCount)
	assert.Equal(t, 1, s.HourlyUsage[10])
	assert.Equal(t, 1, s.HourlyUsage[18])

	total := 0
	for _, v := range s.HourlyUsage {
		total += v
	}
	assert.Equal(t, 2, total)

	assert.Equal(t, 1, stats.HourlyTotals[60])
	assert.Equal(t, 1, stats.HourlyTotals[61])
	assert.Equal(t, 1, stats.HourlyTotals[113])
	assert.Equal(t, models.SlotRange{First: 60, Last: 113}, stats.ActiveRange)
}

func TestAggregateUsesLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	records := []models.LoanRecord{completed(1, 1, at(1, 0), time.Minute)}

	stats := Aggregate(records, nil, false, jst)

	assert.Equal(t, 1, stats.PerItem[0].HourlyUsage[10])
	assert.Equal(t, 1, stats.HourlyTotals[60])
}

func TestAggregateMergeByName(t *testing.T) {
	records := []models.LoanRecord{
		completed(1, 2, at(10, 0), 100*time.Second),
		completed(2, 1, at(10, 0), 100*time.Second),
		completed(3, 1, at(11, 0), 100*time.Second),
		completed(4, 1, at(12, 0), 100*time.Second),
		completed(5, 2, at(13, 0), 100*time.Second),
		completed(6, 3, at(13, 0), 40*time.Second),
	}
	url := "https://img.example/a.png"
	meta := map[int]models.ItemMeta{
		1: {Name: "A"},
		2: {Name: "A", ImageURL: &url},
		3: {Name: "B"},
	}

	stats := Aggregate(records, meta, true, time.UTC)

	assert.True(t, stats.Merged)
	require.Len(t, stats.PerItem, 2)

	a := stats.PerItem[0]
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, 1, a.ItemID)
	assert.Equal(t, []int{1, 2}, a.SourceItemIDs)
	assert.Equal(t, 5, a.LoanCount)
	assert.Equal(t, 500.0, a.TotalDurationSeconds)
	assert.Equal(t, 100.0, a.AverageDurationSeconds)
	assert.Equal(t, 2, a.HourlyUsage[10])
	assert.Equal(t, 1, a.HourlyUsage[13])
	require.NotNil(t, a.ImageURL)
	assert.Equal(t, url, *a.ImageURL)

	b := stats.PerItem[1]
	assert.Equal(t, "B", b.Name)
	assert.Equal(t, []int{3}, b.SourceItemIDs)
	assert.Equal(t, 1, b.LoanCount)
}

func TestAggregateMergeKeepsItemsWithoutMetadataApart(t *testing.T) {
	records := []models.LoanRecord{
		completed(1, 4, at(10, 0), time.Minute),
		completed(2, 5, at(10, 0), time.Minute),
	}

	stats := Aggregate(records, map[int]models.ItemMeta{}, true, time.UTC)

	require.Len(t, stats.PerItem, 2)
	assert.Equal(t, []int{4}, stats.PerItem[0].SourceItemIDs)
	assert.Equal(t, []int{5}, stats.PerItem[1].SourceItemIDs)
}

func TestAggregateIsDeterministic(t *testing.T) {
	records := []models.LoanRecord{
		completed(1, 1, at(8, 0), time.Hour),
		open(2, 2, at(9, 0)),
		completed(3, 1, at(20, 0), 30*time.Minute),
	}
	meta := map[int]models.ItemMeta{1: {Name: "A"}, 2: {Name: "A"}}

	first := Aggregate(records, meta, true, time.UTC)
	second := Aggregate(records, meta, true, time.UTC)

	assert.Equal(t, first, second)
}

func TestSortStatistics(t *testing.T) {
	stats := []models.ItemStatistic{
		{ItemID: 3, Name: "Carcassonne", LoanCount: 2, TotalDurationSeconds: 50, AverageDurationSeconds: 25},
		{ItemID: 1, Name: "Azul", LoanCount: 5, TotalDurationSeconds: 40, AverageDurationSeconds: 8},
		{ItemID: 2, Name: "Blokus", LoanCount: 2, TotalDurationSeconds: 90, AverageDurationSeconds: 45},
	}

	ids := func(s []models.ItemStatistic) []int {
		out := make([]int, len(s))
		for i, v := range s {
			out[i] = v.ItemID
		}
		return out
	}

	tests := []struct {
		by    SortKey
		order SortOrder
		want  []int
	}{
		{SortByLoanCount, SortDesc, []int{1, 3, 2}},
		{SortByLoanCount, SortAsc, []int{3, 2, 1}},
		{SortByTotalDuration, SortDesc, []int{2, 3, 1}},
		{SortByAverageDuration, SortAsc, []int{1, 3, 2}},
		{SortByItemID, SortAsc, []int{1, 2, 3}},
		{SortByName, SortDesc, []int{3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.by)+"_"+string(tt.order), func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SortStatistics(stats, tt.by, tt.order)))
		})
	}

	// Input is left untouched
	assert.Equal(t, []int{3, 1, 2}, ids(stats))
}

func TestParseSortKeyAndOrder(t *testing.T) {
	key, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortByLoanCount, key)

	key, err = ParseSortKey(" Average_Duration ")
	require.NoError(t, err)
	assert.Equal(t, SortByAverageDuration, key)

	_, err = ParseSortKey("popularity")
	assert.Error(t, err)

	order, err := ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, order)

	order, err = ParseSortOrder("ASC")
	require.NoError(t, err)
	assert.Equal(t, SortAsc, order)

	_, err = ParseSortOrder("up")
	assert.Error(t, err)
}
