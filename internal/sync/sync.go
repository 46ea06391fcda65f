package sync

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

// Fetcher downloads records from Garmin Connect. *garmin.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, token string, metric models.MetricType, r models.DateRange) ([]models.Record, error)
}

// Account is the logged-in user a request is made for. *session.Session
// implements it.
type Account interface {
	Username() string
	Token() (string, error)
}

// Catalog indexes cache entries. *database.SQLiteDB implements it.
type Catalog interface {
	UpsertEntry(entry *database.CacheEntry) error
	DeleteEntry(user, metric, startDate, endDate string) error
}

// Options tune when a cached entry is refetched.
type Options struct {
	CacheRoot string
	// Entries whose range ends within this many days of today are
	// considered live and refetched once older than RecentMaxAge.
	RefreshRecentDays int
	RecentMaxAge      time.Duration
}

// Result is what a read-through lookup returned.
type Result struct {
	Records   []models.Record
	FromCache bool
	FetchedAt time.Time
}

type SyncService struct {
	fetcher Fetcher
	catalog Catalog
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

// NewSyncService wires the read-through path. catalog may be nil.
func NewSyncService(fetcher Fetcher, catalog Catalog, opts Options, log zerolog.Logger) *SyncService {
	return &SyncService{
		fetcher: fetcher,
		catalog: catalog,
		opts:    opts,
		log:     log.With().Str("component", "sync").Logger(),
		now:     time.Now,
	}
}

// Cache opens the cache of one user.
func (s *SyncService) Cache(username string) *cache.Cache {
	return cache.Open(s.opts.CacheRoot, username, s.log)
}

// Records returns the records of metric for r, from the cache when a fresh
// entry exists and from Garmin Connect otherwise. A failed fetch leaves the
// cache untouched.
func (s *SyncService) Records(ctx context.Context, acct Account, metric models.MetricType, r models.DateRange, force bool) (*Result, error) {
	now := s.now()
	if err := r.Validate(now); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInput, "Invalid date range", "Pick an end date on or before today")
	}

	token, err := acct.Token()
	if err != nil {
		return nil, err
	}

	user := acct.Username()
	key := cache.Key{Metric: metric, Range: r}
	c := s.Cache(user)
	log := s.log.With().Str("key", key.String()).Logger()

	if !force {
		entry, err := c.Get(key)
		switch {
		case err == nil:
			if !s.stale(entry, now) {
				log.Debug().Int("records", len(entry.Records)).Msg("Cache hit")
				return &Result{Records: entry.Records, FromCache: true, FetchedAt: entry.FetchedAt}, nil
			}
			log.Info().Time("fetched_at", entry.FetchedAt).Msg("Cached range is recent and stale, refreshing")
		case stderrors.Is(err, cache.ErrMiss):
			log.Debug().Msg("Cache miss")
		case stderrors.Is(err, cache.ErrCorrupt):
			log.Warn().Err(err).Msg("Cache entry unreadable, refetching")
		default:
			return nil, err
		}
	}

	start := time.Now()
	records, err := s.fetcher.Fetch(ctx, token, metric, r)
	if err != nil {
		return nil, err
	}

	if err := c.Put(key, records); err != nil {
		return nil, err
	}
	fetchedAt := s.now()

	s.record(user, key, c.Path(key), len(records), fetchedAt)

	log.Info().
		Int("records", len(records)).
		Dur("took", time.Since(start)).
		Msg("Fetched and cached")
	return &Result{Records: records, FetchedAt: fetchedAt}, nil
}

// Load fetches several metrics for the same range, stopping at the first
// error.
func (s *SyncService) Load(ctx context.Context, acct Account, metrics []models.MetricType, r models.DateRange, force bool) (map[models.MetricType][]models.Record, error) {
	out := make(map[models.MetricType][]models.Record, len(metrics))
	for _, m := range metrics {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := s.Records(ctx, acct, m, r, force)
		if err != nil {
			return nil, err
		}
		out[m] = res.Records
	}
	return out, nil
}

// Invalidate removes a cache entry and its catalog row.
func (s *SyncService) Invalidate(username string, key cache.Key) error {
	if err := s.Cache(username).Delete(key); err != nil {
		return err
	}
	if s.catalog != nil {
		if err := s.catalog.DeleteEntry(cache.UserDir(username), key.Metric.String(), key.Range.StartString(), key.Range.EndString()); err != nil {
			s.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to remove catalog entry")
		}
	}
	return nil
}

// stale reports whether a cached entry covers recent days and is older than
// RecentMaxAge. Ranges that ended before the refresh window never go stale.
func (s *SyncService) stale(entry *cache.Entry, now time.Time) bool {
	if s.opts.RefreshRecentDays <= 0 {
		return false
	}
	windowStart := models.Day(now).AddDate(0, 0, -(s.opts.RefreshRecentDays - 1))
	if entry.Key.Range.End.Before(windowStart) {
		return false
	}
	return now.Sub(entry.FetchedAt) > s.opts.RecentMaxAge
}

func (s *SyncService) record(user string, key cache.Key, path string, n int, fetchedAt time.Time) {
	if s.catalog == nil {
		return
	}
	err := s.catalog.UpsertEntry(&database.CacheEntry{
		User:        cache.UserDir(user),
		Metric:      key.Metric.String(),
		StartDate:   key.Range.StartString(),
		EndDate:     key.Range.EndString(),
		Path:        path,
		RecordCount: n,
		FetchedAt:   fetchedAt,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to update cache catalog")
	}
}
