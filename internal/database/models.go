// internal/database/models.go
package database

import (
	"time"
)

// CacheEntry is the catalog row describing one Parquet cache file.
type CacheEntry struct {
	ID          int       `json:"id"`
	User        string    `json:"user"`
	Metric      string    `json:"metric"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Stats struct {
	Entries  int            `json:"entries"`
	Records  int            `json:"records"`
	ByMetric map[string]int `json:"by_metric"`
}

// Database interface
type Database interface {
	UpsertEntry(entry *CacheEntry) error
	GetEntry(user, metric, startDate, endDate string) (*CacheEntry, error)
	DeleteEntry(user, metric, startDate, endDate string) error

	// Stats
	GetStats(user string) (*Stats, error)

	// Search and filter
	ListEntries(filters EntryFilters) ([]CacheEntry, error)

	// Close connection
	Close() error
}

type EntryFilters struct {
	User        string
	Metric      string
	DateFrom    string
	DateTo      string
	FetchedFrom *time.Time
	Limit       int
	Offset      int
	SortBy      string
	SortOrder   string
}
