package cache

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

func hrvKey(t *testing.T) Key {
	t.Helper()
	r, err := models.ParseDateRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	return Key{Metric: models.MetricHRV, Range: r}
}

func hrvRecords(t *testing.T, key Key) []models.Record {
	t.Helper()
	var out []models.Record
	for i, d := range key.Range.Days() {
		r := models.DailyRecord(models.MetricHRV, d.Format(models.DateLayout), models.FieldHRVLastNight, 40+float64(i))
		r.Text = "BALANCED"
		out = append(out, r)
	}
	return out
}

func TestPutGetRoundTrip(t *testing.T) {
	c := Open(t.TempDir(), "runner@example.com", zerolog.Nop())
	key := hrvKey(t)
	records := hrvRecords(t, key)
	records = append(records, models.Record{
		Date: "2024-01-03", Time: 1704265200000, Metric: "activities",
		Entity: "987", Field: "start", Text: "running",
	})

	require.NoError(t, c.Put(key, records))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, records, entry.Records)
	assert.Equal(t, key, entry.Key)
	assert.WithinDuration(t, time.Now(), entry.FetchedAt, time.Minute)
	assert.FileExists(t, filepath.Join(c.Dir(), "hrv_2024-01-01_to_2024-01-07.parquet"))
}

func TestGetMiss(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())

	entry, err := c.Get(hrvKey(t))
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestEmptyEntryIsAHit(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	key := hrvKey(t)

	require.NoError(t, c.Put(key, nil))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Empty(t, entry.Records)
}

func TestPutReplacesEntry(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	key := hrvKey(t)
	records := hrvRecords(t, key)

	require.NoError(t, c.Put(key, records))
	require.NoError(t, c.Put(key, records[:3]))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, records[:3], entry.Records)
}

func TestInterruptedPutKeepsPreviousEntry(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	key := hrvKey(t)
	records := hrvRecords(t, key)
	require.NoError(t, c.Put(key, records))

	c.encode = func(w io.Writer, rows []models.Record) error {
		_, _ = w.Write([]byte("PAR1 half a file"))
		return stderrors.New("disk full")
	}

	err := c.Put(key, records[:1])
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCacheIO))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, records, entry.Records)

	files, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary file must be cleaned up")
}

func TestInterruptedFirstPutLeavesMiss(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	c.encode = func(w io.Writer, rows []models.Record) error {
		return stderrors.New("killed")
	}
	key := hrvKey(t)

	require.Error(t, c.Put(key, hrvRecords(t, key)))

	_, err := c.Get(key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCorruptEntry(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	key := hrvKey(t)
	require.NoError(t, os.MkdirAll(c.Dir(), 0755))
	require.NoError(t, os.WriteFile(c.Path(key), []byte("not parquet"), 0644))

	_, err := c.Get(key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.True(t, errors.IsCode(err, errors.ErrCacheIO))
}

func TestListAndDelete(t *testing.T) {
	c := Open(t.TempDir(), "runner", zerolog.Nop())
	key := hrvKey(t)
	summary := Key{Metric: models.MetricDailySummary, Range: key.Range}

	keys, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, c.Put(key, nil))
	require.NoError(t, c.Put(summary, nil))
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), "notes.txt"), []byte("x"), 0644))

	keys, err = c.List()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, models.MetricDailySummary, keys[0].Metric)
	assert.Equal(t, models.MetricHRV, keys[1].Metric)

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key))

	_, err = c.Get(key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSweepTemp(t *testing.T) {
	root := t.TempDir()
	c := Open(root, "runner", zerolog.Nop())
	require.NoError(t, os.MkdirAll(c.Dir(), 0755))

	stale := filepath.Join(c.Dir(), tmpPrefix+"old.parquet")
	fresh := filepath.Join(c.Dir(), tmpPrefix+"new.parquet")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	n, err := SweepAll(root, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, m := range models.AllMetrics {
		key := Key{Metric: m, Range: hrvKey(t).Range}
		got, err := ParseFileName(key.FileName())
		require.NoError(t, err, m)
		assert.Equal(t, key, got)
	}

	_, err := ParseFileName("hrv.parquet")
	assert.Error(t, err)
	_, err = ParseFileName("steps_2024-01-01_to_2024-01-02.parquet")
	assert.Error(t, err)
}

func TestUserDir(t *testing.T) {
	dir := UserDir("Runner@Example.com")
	assert.Regexp(t, `^runner_example_com-[0-9a-f]{8}$`, dir)
	assert.Equal(t, dir, UserDir("  runner@example.com "))
	assert.NotContains(t, UserDir("../../etc"), "/")

	assert.NotEqual(t, UserDir("a.b@x.com"), UserDir("a_b@x.com"))
}

func TestLookalikeUsersKeepSeparateCaches(t *testing.T) {
	root := t.TempDir()
	r, err := models.ParseDateRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	key := Key{Metric: models.MetricHRV, Range: r}

	require.NoError(t, Open(root, "a.b@x.com", zerolog.Nop()).Put(key, []models.Record{
		models.DailyRecord(models.MetricHRV, "2024-01-01", "value", 1),
	}))

	_, err = Open(root, "a_b@x.com", zerolog.Nop()).Get(key)
	assert.ErrorIs(t, err, ErrMiss, "another login must not see this cache")

	users, err := Users(root)
	require.NoError(t, err)
	require.Equal(t, []string{UserDir("a.b@x.com")}, users)
	keys, err := OpenDir(root, users[0], zerolog.Nop()).List()
	require.NoError(t, err)
	assert.Equal(t, []Key{key}, keys)
}
