package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/config"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/garmin"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/scheduler"
)

// Command-specific flags
var (
	configFlag      string
	cacheUserFlag   string
	cacheMetricFlag string
)

var rootCmd = &cobra.Command{
	Use:   "garmindash",
	Short: "Local dashboard for Garmin Connect health and training data",
	Long: `garmindash serves a browser dashboard of HRV, sleep, stress, running and
training load data pulled from Garmin Connect.

Fetched data is cached per user as Parquet files so each date range is only
downloaded once. Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand()
	},
}

// serveCmd starts the web dashboard
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand()
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local data cache",
}

// cacheListCmd lists cache entries on disk
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries",
	Long: `List every cache entry on disk with its record count and fetch time.

Examples:
  garmindash cache list
  garmindash cache list --user runner@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheListCommand(cmd.OutOrStdout(), cacheUserFlag)
	},
}

// cacheClearCmd removes entries so they are fetched again
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached entries of a user",
	Long: `Remove the cached entries of one user, optionally only those of one metric.
The next dashboard request for a removed range fetches it again.

Examples:
  garmindash cache clear --user runner@example.com
  garmindash cache clear --user runner@example.com --metric hrv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheClearCommand(cmd.OutOrStdout(), cacheUserFlag, cacheMetricFlag)
	},
}

// cacheSweepCmd deletes temp files left by interrupted writes
var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete temporary files left by interrupted writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheSweepCommand(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default ./"+config.ConfigFileName+")")

	cacheListCmd.Flags().StringVarP(&cacheUserFlag, "user", "u", "", "only list this user's entries")
	cacheClearCmd.Flags().StringVarP(&cacheUserFlag, "user", "u", "", "user whose entries to remove")
	cacheClearCmd.Flags().StringVarP(&cacheMetricFlag, "metric", "m", "", "only remove entries of this metric")
	_ = cacheClearCmd.MarkFlagRequired("user")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheSweepCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), describe(err))
		os.Exit(1)
	}
}

func describe(err error) string {
	if e, ok := errors.As(err); ok {
		return e.UserMessage()
	}
	return err.Error()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

func serveCommand() error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return newApp(cfg, log).run()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// cacheRow is one line of `cache list`.
type cacheRow struct {
	User    string
	Key     cache.Key
	Records string
	Fetched string
}

func cacheListCommand(w io.Writer, user string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return errors.CacheIO("Failed to open the cache catalog", err)
	}
	defer db.Close()

	rows, err := collectCacheRows(cfg.CacheDir(), user, db, log)
	if err != nil {
		return err
	}
	fmt.Fprint(w, renderCacheRows(rows))
	return nil
}

type entryGetter interface {
	GetEntry(user, metric, startDate, endDate string) (*database.CacheEntry, error)
}

// collectCacheRows lists the entries on disk, annotated with their catalog
// row when there is one. Entries missing from the catalog show "-".
func collectCacheRows(root, user string, catalog entryGetter, log zerolog.Logger) ([]cacheRow, error) {
	users := []string{cache.UserDir(user)}
	if user == "" {
		var err error
		if users, err = cache.Users(root); err != nil {
			return nil, err
		}
	}

	var rows []cacheRow
	for _, u := range users {
		keys, err := cache.OpenDir(root, u, log).List()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			row := cacheRow{User: u, Key: k, Records: "-", Fetched: "-"}
			if catalog != nil {
				if e, err := catalog.GetEntry(u, k.Metric.String(), k.Range.StartString(), k.Range.EndString()); err == nil {
					row.Records = strconv.Itoa(e.RecordCount)
					row.Fetched = e.FetchedAt.Local().Format("2006-01-02 15:04")
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func renderCacheRows(rows []cacheRow) string {
	if len(rows) == 0 {
		return mutedStyle.Render("No cached entries") + "\n"
	}

	output := headerStyle.Render(padRight("USER", 24)+padRight("METRIC", 16)+padRight("RANGE", 28)+padRight("RECORDS", 10)+"FETCHED") + "\n"
	for _, r := range rows {
		output += padRight(r.User, 24) +
			padRight(r.Key.Metric.String(), 16) +
			padRight(r.Key.Range.StartString()+" to "+r.Key.Range.EndString(), 28) +
			padRight(r.Records, 10) +
			mutedStyle.Render(r.Fetched) + "\n"
	}
	return output
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s + " "
	}
	for i := 0; i < width-visibleLen; i++ {
		s += " "
	}
	return s
}

func cacheClearCommand(w io.Writer, user, metric string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	var only models.MetricType
	if metric != "" {
		if only, err = models.ParseMetricType(metric); err != nil {
			return errors.WrapWithCode(err, errors.ErrInput, "Unknown metric "+metric,
				"Use one of hrv, sleep, daily_summary, activities, heart_rate")
		}
	}

	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return errors.CacheIO("Failed to open the cache catalog", err)
	}
	defer db.Close()

	svc := newSyncService(cfg, garmin.NewClient(cfg.GarminAPIURL, cfg.HTTPTimeout, log), db, log)
	n, err := clearCache(svc, user, only)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed %d cache entries for %s\n", n, cache.UserDir(user))
	return nil
}

// invalidator is the part of *sync.SyncService clearCache needs.
type invalidator interface {
	Cache(username string) *cache.Cache
	Invalidate(username string, key cache.Key) error
}

// clearCache removes every entry of user, or only those of metric when it is
// set, and returns how many were removed.
func clearCache(svc invalidator, user string, metric models.MetricType) (int, error) {
	keys, err := svc.Cache(user).List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if metric != "" && k.Metric != metric {
			continue
		}
		if err := svc.Invalidate(user, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func cacheSweepCommand(w io.Writer) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	job := scheduler.NewTempSweepJob(cfg.CacheDir(), scheduler.TempMaxAge, log)
	if err := scheduler.New(log).RunNow(job); err != nil {
		return err
	}
	fmt.Fprintln(w, "Sweep complete")
	return nil
}
