package cache

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

const tmpPrefix = ".tmp-"

var (
	// ErrMiss is returned by Get when no entry was ever written for the key.
	ErrMiss = stderrors.New("cache miss")
	// ErrCorrupt marks an entry file that exists but cannot be decoded.
	ErrCorrupt = stderrors.New("cache entry corrupt")
)

// Entry is a decoded cache file.
type Entry struct {
	Key       Key
	Path      string
	Records   []models.Record
	FetchedAt time.Time
}

type encodeFunc func(w io.Writer, rows []models.Record) error

func encodeParquet(w io.Writer, rows []models.Record) error {
	return parquet.Write(w, rows)
}

// Cache stores one user's records as Parquet files, one file per key.
// Entries are replaced whole and never evicted.
type Cache struct {
	dir    string
	log    zerolog.Logger
	encode encodeFunc
}

// Open returns the cache for username under root. The directory is created
// on first Put.
func Open(root, username string, log zerolog.Logger) *Cache {
	return OpenDir(root, UserDir(username), log)
}

// OpenDir returns the cache stored in dir under root, as listed by Users.
func OpenDir(root, dir string, log zerolog.Logger) *Cache {
	return &Cache{
		dir:    filepath.Join(root, dir),
		log:    log.With().Str("component", "cache").Logger(),
		encode: encodeParquet,
	}
}

// Dir is the user's cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path is the file backing key.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, key.FileName())
}

// Get returns the entry for key, ErrMiss if there is none, or a CacheIO error
// wrapping ErrCorrupt if the file cannot be decoded.
func (c *Cache) Get(key Key) (*Entry, error) {
	path := c.Path(key)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, errors.CacheIO("Failed to open cache entry "+key.String(), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.CacheIO("Failed to stat cache entry "+key.String(), err)
	}

	rows, err := parquet.Read[models.Record](f, info.Size())
	if err != nil {
		return nil, errors.CacheIO("Failed to decode cache entry "+key.String(),
			fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	return &Entry{
		Key:       key,
		Path:      path,
		Records:   rows,
		FetchedAt: info.ModTime(),
	}, nil
}

// Put replaces the entry for key. The file is written to a temporary name in
// the same directory and renamed into place, so readers see either the old
// entry or the new one.
func (c *Cache) Put(key Key, records []models.Record) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.CacheIO("Failed to create cache directory", err)
	}

	tmp, err := os.CreateTemp(c.dir, tmpPrefix+"*"+fileExt)
	if err != nil {
		return errors.CacheIO("Failed to create temporary cache file", err)
	}
	tmpName := tmp.Name()
	fail := func(msg string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return errors.CacheIO(msg+" for "+key.String(), err)
	}

	if err := c.encode(tmp, records); err != nil {
		return fail("Failed to encode cache entry", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("Failed to flush cache entry", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("Failed to close cache entry", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.CacheIO("Failed to set cache entry permissions", err)
	}
	if err := os.Rename(tmpName, c.Path(key)); err != nil {
		os.Remove(tmpName)
		return errors.CacheIO("Failed to move cache entry into place", err)
	}

	c.log.Debug().
		Str("key", key.String()).
		Int("records", len(records)).
		Msg("Cache entry written")
	return nil
}

// Delete removes the entry for key. Deleting a missing entry is not an error.
func (c *Cache) Delete(key Key) error {
	if err := os.Remove(c.Path(key)); err != nil && !os.IsNotExist(err) {
		return errors.CacheIO("Failed to delete cache entry "+key.String(), err)
	}
	return nil
}

// List returns every key with an entry on disk, sorted by file name.
func (c *Cache) List() ([]Key, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.CacheIO("Failed to list cache directory", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	keys := make([]Key, 0, len(names))
	for _, name := range names {
		key, err := ParseFileName(name)
		if err != nil {
			c.log.Debug().Str("file", name).Msg("Skipping unrecognised file")
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// SweepTemp removes temporary files older than olderThan that an interrupted
// Put left behind.
func (c *Cache) SweepTemp(olderThan time.Duration) (int, error) {
	return sweepDir(c.dir, olderThan, time.Now())
}

func sweepDir(dir string, olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.CacheIO("Failed to list cache directory", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < olderThan {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Users lists the user directories under root.
func Users(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.CacheIO("Failed to list cache root", err)
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	return users, nil
}

// SweepAll runs SweepTemp over every user directory under root.
func SweepAll(root string, olderThan time.Duration) (int, error) {
	users, err := Users(root)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	total := 0
	for _, u := range users {
		n, err := sweepDir(filepath.Join(root, u), olderThan, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
