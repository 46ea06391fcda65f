package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)

	db, err := NewSQLiteDBFromDB(conn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func entry(user, metric, start, end string, records int, fetched time.Time) *CacheEntry {
	return &CacheEntry{
		User:        user,
		Metric:      metric,
		StartDate:   start,
		EndDate:     end,
		Path:        "/data/cache/" + user + "/" + metric + "_" + start + "_to_" + end + ".parquet",
		RecordCount: records,
		FetchedAt:   fetched,
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	fetched := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)

	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-01", "2024-01-07", 7, fetched)))

	got, err := db.GetEntry("runner", "hrv", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, 7, got.RecordCount)
	assert.True(t, fetched.Equal(got.FetchedAt))

	// Second upsert updates in place
	later := fetched.Add(3 * time.Hour)
	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-01", "2024-01-07", 6, later)))

	got2, err := db.GetEntry("runner", "hrv", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, got.ID, got2.ID)
	assert.Equal(t, 6, got2.RecordCount)
	assert.True(t, later.Equal(got2.FetchedAt))
}

func TestGetEntryNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetEntry("runner", "sleep", "2024-01-01", "2024-01-07")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEntry(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-01", "2024-01-07", 7, time.Now())))

	require.NoError(t, db.DeleteEntry("runner", "hrv", "2024-01-01", "2024-01-07"))

	_, err := db.GetEntry("runner", "hrv", "2024-01-01", "2024-01-07")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEntriesFilters(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-01", "2024-01-07", 7, base)))
	require.NoError(t, db.UpsertEntry(entry("runner", "sleep", "2024-01-01", "2024-01-07", 6, base.Add(time.Hour))))
	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-20", "2024-01-31", 12, base.Add(2*time.Hour))))
	require.NoError(t, db.UpsertEntry(entry("other", "hrv", "2024-01-01", "2024-01-07", 7, base.Add(3*time.Hour))))

	tests := []struct {
		name    string
		filters EntryFilters
		want    []string
	}{
		{
			name:    "all newest first",
			filters: EntryFilters{},
			want:    []string{"other/hrv/2024-01-01", "runner/hrv/2024-01-20", "runner/sleep/2024-01-01", "runner/hrv/2024-01-01"},
		},
		{
			name:    "by user and metric",
			filters: EntryFilters{User: "runner", Metric: "hrv", SortBy: "start_date", SortOrder: "asc"},
			want:    []string{"runner/hrv/2024-01-01", "runner/hrv/2024-01-20"},
		},
		{
			name:    "overlapping dates",
			filters: EntryFilters{User: "runner", DateFrom: "2024-01-10", DateTo: "2024-01-25"},
			want:    []string{"runner/hrv/2024-01-20"},
		},
		{
			name:    "unknown sort column falls back",
			filters: EntryFilters{User: "runner", SortBy: "path; DROP TABLE cache_entries", Limit: 1},
			want:    []string{"runner/hrv/2024-01-20"},
		},
		{
			name:    "pagination",
			filters: EntryFilters{Limit: 2, Offset: 2},
			want:    []string{"runner/sleep/2024-01-01", "runner/hrv/2024-01-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := db.ListEntries(tt.filters)
			require.NoError(t, err)

			var got []string
			for _, e := range entries {
				got = append(got, e.User+"/"+e.Metric+"/"+e.StartDate)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-01", "2024-01-07", 7, now)))
	require.NoError(t, db.UpsertEntry(entry("runner", "hrv", "2024-01-08", "2024-01-14", 5, now)))
	require.NoError(t, db.UpsertEntry(entry("runner", "sleep", "2024-01-01", "2024-01-07", 6, now)))
	require.NoError(t, db.UpsertEntry(entry("other", "sleep", "2024-01-01", "2024-01-07", 3, now)))

	stats, err := db.GetStats("runner")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 18, stats.Records)
	assert.Equal(t, map[string]int{"hrv": 2, "sleep": 1}, stats.ByMetric)

	all, err := db.GetStats("")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Entries)
}
