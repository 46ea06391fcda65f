package sync

import (
	"context"
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

var today = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	calls   int
	records map[models.MetricType][]models.Record
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, token string, metric models.MetricType, r models.DateRange) ([]models.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[metric], nil
}

type fakeAccount struct {
	token string
}

func (a fakeAccount) Username() string { return "runner@example.com" }

func (a fakeAccount) Token() (string, error) {
	if a.token == "" {
		return "", errors.Auth("Not logged in to Garmin Connect", nil)
	}
	return a.token, nil
}

type fakeCatalog struct {
	entries map[string]*database.CacheEntry
	err     error
}

func (c *fakeCatalog) UpsertEntry(e *database.CacheEntry) error {
	if c.err != nil {
		return c.err
	}
	c.entries[e.Metric+"/"+e.StartDate+"/"+e.EndDate] = e
	return nil
}

func (c *fakeCatalog) DeleteEntry(user, metric, start, end string) error {
	delete(c.entries, metric+"/"+start+"/"+end)
	return nil
}

func hrvWeek(t *testing.T) (models.DateRange, []models.Record) {
	t.Helper()
	r, err := models.ParseDateRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	var records []models.Record
	for i, d := range r.Days() {
		records = append(records, models.DailyRecord(models.MetricHRV, d.Format(models.DateLayout), models.FieldHRVLastNight, 45+float64(i)))
	}
	return r, records
}

func newService(t *testing.T, f Fetcher, cat Catalog) *SyncService {
	t.Helper()
	s := NewSyncService(f, cat, Options{
		CacheRoot:         t.TempDir(),
		RefreshRecentDays: 2,
		RecentMaxAge:      2 * time.Hour,
	}, zerolog.Nop())
	s.now = func() time.Time { return today }
	return s
}

func TestRecordsReadThrough(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	cat := &fakeCatalog{entries: map[string]*database.CacheEntry{}}
	s := newService(t, f, cat)
	acct := fakeAccount{token: "tok"}

	first, err := s.Records(context.Background(), acct, models.MetricHRV, r, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Records, 7)
	assert.Equal(t, 1, f.calls)

	entry, err := s.Cache(acct.Username()).Get(cache.Key{Metric: models.MetricHRV, Range: r})
	require.NoError(t, err)
	assert.Len(t, entry.Records, 7)

	second, err := s.Records(context.Background(), acct, models.MetricHRV, r, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, records, second.Records)
	assert.Equal(t, 1, f.calls, "second lookup must not reach Garmin Connect")

	row := cat.entries["hrv/2024-01-01/2024-01-07"]
	require.NotNil(t, row)
	assert.Equal(t, 7, row.RecordCount)
	assert.Equal(t, cache.UserDir("runner@example.com"), row.User)
}

func TestRecordsWithoutLoginDoesNotFetch(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	s := newService(t, f, nil)

	_, err := s.Records(context.Background(), fakeAccount{}, models.MetricHRV, r, false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))
	assert.Equal(t, 0, f.calls)
}

func TestFailedFetchLeavesCacheUnmodified(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{err: errors.Fetch(errors.KindNetwork, "Request to Garmin Connect failed", stderrors.New("reset"))}
	s := newService(t, f, nil)
	acct := fakeAccount{token: "tok"}
	key := cache.Key{Metric: models.MetricHRV, Range: r}

	_, err := s.Records(context.Background(), acct, models.MetricHRV, r, false)
	assert.True(t, errors.IsCode(err, errors.ErrFetch))
	_, err = s.Cache(acct.Username()).Get(key)
	assert.ErrorIs(t, err, cache.ErrMiss)

	// Existing entry survives a failed forced refresh
	require.NoError(t, s.Cache(acct.Username()).Put(key, records))
	_, err = s.Records(context.Background(), acct, models.MetricHRV, r, true)
	assert.True(t, errors.IsCode(err, errors.ErrFetch))

	entry, err := s.Cache(acct.Username()).Get(key)
	require.NoError(t, err)
	assert.Equal(t, records, entry.Records)
}

func TestForceRefresh(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	s := newService(t, f, nil)
	acct := fakeAccount{token: "tok"}

	_, err := s.Records(context.Background(), acct, models.MetricHRV, r, false)
	require.NoError(t, err)

	f.records[models.MetricHRV] = records[:2]
	res, err := s.Records(context.Background(), acct, models.MetricHRV, r, true)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 2, f.calls)
}

func TestRecentRangesAreRefreshed(t *testing.T) {
	recent, err := models.ParseDateRange("2024-01-04", "2024-01-10")
	require.NoError(t, err)
	old, err := models.ParseDateRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)

	tests := []struct {
		name      string
		r         models.DateRange
		age       time.Duration
		wantFetch bool
	}{
		{"recent and stale", recent, 3 * time.Hour, true},
		{"recent and fresh", recent, 30 * time.Minute, false},
		{"old range never stale", old, 30 * 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{records: map[models.MetricType][]models.Record{}}
			s := newService(t, f, nil)
			acct := fakeAccount{token: "tok"}
			key := cache.Key{Metric: models.MetricSleep, Range: tt.r}
			c := s.Cache(acct.Username())

			require.NoError(t, c.Put(key, nil))
			mtime := today.Add(-tt.age)
			require.NoError(t, os.Chtimes(c.Path(key), mtime, mtime))

			res, err := s.Records(context.Background(), acct, models.MetricSleep, tt.r, false)
			require.NoError(t, err)
			assert.Equal(t, !tt.wantFetch, res.FromCache)
			if tt.wantFetch {
				assert.Equal(t, 1, f.calls)
			} else {
				assert.Equal(t, 0, f.calls)
			}
		})
	}
}

func TestCorruptEntryIsRefetched(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	s := newService(t, f, nil)
	acct := fakeAccount{token: "tok"}
	c := s.Cache(acct.Username())
	key := cache.Key{Metric: models.MetricHRV, Range: r}

	require.NoError(t, os.MkdirAll(c.Dir(), 0755))
	require.NoError(t, os.WriteFile(c.Path(key), []byte("garbage"), 0644))

	res, err := s.Records(context.Background(), acct, models.MetricHRV, r, false)
	require.NoError(t, err)
	assert.Len(t, res.Records, 7)
	assert.Equal(t, 1, f.calls)
}

func TestCatalogFailureIsNotFatal(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	s := newService(t, f, &fakeCatalog{err: stderrors.New("database is locked")})

	res, err := s.Records(context.Background(), fakeAccount{token: "tok"}, models.MetricHRV, r, false)
	require.NoError(t, err)
	assert.Len(t, res.Records, 7)
}

func TestRecordsRejectsFutureRange(t *testing.T) {
	f := &fakeFetcher{}
	s := newService(t, f, nil)
	r, err := models.ParseDateRange("2024-01-05", "2024-01-20")
	require.NoError(t, err)

	_, err = s.Records(context.Background(), fakeAccount{token: "tok"}, models.MetricHRV, r, false)
	assert.True(t, errors.IsCode(err, errors.ErrInput))
	assert.Equal(t, 0, f.calls)
}

func TestLoadAndInvalidate(t *testing.T) {
	r, records := hrvWeek(t)
	f := &fakeFetcher{records: map[models.MetricType][]models.Record{models.MetricHRV: records}}
	cat := &fakeCatalog{entries: map[string]*database.CacheEntry{}}
	s := newService(t, f, cat)
	acct := fakeAccount{token: "tok"}

	data, err := s.Load(context.Background(), acct, []models.MetricType{models.MetricHRV, models.MetricSleep}, r, false)
	require.NoError(t, err)
	assert.Len(t, data[models.MetricHRV], 7)
	assert.Empty(t, data[models.MetricSleep])
	assert.Len(t, cat.entries, 2)

	key := cache.Key{Metric: models.MetricHRV, Range: r}
	require.NoError(t, s.Invalidate(acct.Username(), key))
	assert.Len(t, cat.entries, 1)

	_, err = s.Cache(acct.Username()).Get(key)
	assert.ErrorIs(t, err, cache.ErrMiss)
}
