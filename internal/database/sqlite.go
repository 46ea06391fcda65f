// internal/database/sqlite.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const timeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned when a catalog row does not exist.
var ErrNotFound = errors.New("cache entry not found")

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return NewSQLiteDBFromDB(db)
}

// NewSQLiteDBFromDB wraps an existing sql.DB connection and creates the schema.
func NewSQLiteDBFromDB(db *sql.DB) (*SQLiteDB, error) {
	sqlite := &SQLiteDB{db: db}
	if err := sqlite.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sqlite, nil
}

func (s *SQLiteDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT NOT NULL,
		metric TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		path TEXT NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME NOT NULL,
		UNIQUE (user, metric, start_date, end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_user ON cache_entries(user);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_metric ON cache_entries(metric);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_fetched_at ON cache_entries(fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) UpsertEntry(entry *CacheEntry) error {
	query := `
	INSERT INTO cache_entries (
		user, metric, start_date, end_date, path, record_count, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user, metric, start_date, end_date) DO UPDATE SET
		path = excluded.path,
		record_count = excluded.record_count,
		fetched_at = excluded.fetched_at`

	_, err := s.db.Exec(query,
		entry.User, entry.Metric, entry.StartDate, entry.EndDate,
		entry.Path, entry.RecordCount, entry.FetchedAt.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteDB) GetEntry(user, metric, startDate, endDate string) (*CacheEntry, error) {
	query := `
	SELECT id, user, metric, start_date, end_date, path, record_count, fetched_at
	FROM cache_entries
	WHERE user = ? AND metric = ? AND start_date = ? AND end_date = ?`

	e, err := scanEntry(s.db.QueryRow(query, user, metric, startDate, endDate))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *SQLiteDB) DeleteEntry(user, metric, startDate, endDate string) error {
	_, err := s.db.Exec(
		`DELETE FROM cache_entries WHERE user = ? AND metric = ? AND start_date = ? AND end_date = ?`,
		user, metric, startDate, endDate,
	)
	return err
}

func (s *SQLiteDB) GetStats(user string) (*Stats, error) {
	stats := &Stats{ByMetric: make(map[string]int)}

	query := `SELECT metric, COUNT(*), COALESCE(SUM(record_count), 0) FROM cache_entries`
	var args []interface{}
	if user != "" {
		query += ` WHERE user = ?`
		args = append(args, user)
	}
	query += ` GROUP BY metric`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var metric string
		var entries, records int
		if err := rows.Scan(&metric, &entries, &records); err != nil {
			return nil, err
		}
		stats.ByMetric[metric] = entries
		stats.Entries += entries
		stats.Records += records
	}
	return stats, rows.Err()
}

var sortColumns = map[string]string{
	"fetched_at":   "fetched_at",
	"start_date":   "start_date",
	"metric":       "metric",
	"record_count": "record_count",
}

func (s *SQLiteDB) ListEntries(filters EntryFilters) ([]CacheEntry, error) {
	query := `
	SELECT id, user, metric, start_date, end_date, path, record_count, fetched_at
	FROM cache_entries WHERE 1=1`

	var args []interface{}
	var conditions []string

	// Build WHERE conditions
	if filters.User != "" {
		conditions = append(conditions, "user = ?")
		args = append(args, filters.User)
	}

	if filters.Metric != "" {
		conditions = append(conditions, "metric = ?")
		args = append(args, filters.Metric)
	}

	// Ranges overlapping [DateFrom, DateTo]
	if filters.DateFrom != "" {
		conditions = append(conditions, "end_date >= ?")
		args = append(args, filters.DateFrom)
	}

	if filters.DateTo != "" {
		conditions = append(conditions, "start_date <= ?")
		args = append(args, filters.DateTo)
	}

	if filters.FetchedFrom != nil {
		conditions = append(conditions, "fetched_at >= ?")
		args = append(args, filters.FetchedFrom.UTC().Format(timeLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	orderBy := "fetched_at"
	if col, ok := sortColumns[filters.SortBy]; ok {
		orderBy = col
	}

	order := "DESC"
	if filters.SortOrder == "asc" {
		order = "ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, id %s", orderBy, order, order)

	// Add pagination
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)

		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*CacheEntry, error) {
	var e CacheEntry
	var fetchedAt string

	err := row.Scan(
		&e.ID, &e.User, &e.Metric, &e.StartDate, &e.EndDate,
		&e.Path, &e.RecordCount, &fetchedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// go-sqlite3 hands DATETIME columns back as RFC3339 when the driver parsed them.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
