// main.go - Entry point and dependency injection
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/config"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/garmin"
	"github.com/sstent/garmindash/internal/logger"
	"github.com/sstent/garmindash/internal/scheduler"
	"github.com/sstent/garmindash/internal/session"
	"github.com/sstent/garmindash/internal/sync"
	"github.com/sstent/garmindash/internal/web"
)

// sessionSweepSchedule is fixed; idle sessions must be wiped even when the
// temp-file sweeper is disabled.
const sessionSweepSchedule = "@every 10m"

type App struct {
	cfg         *config.Config
	log         zerolog.Logger
	db          *database.SQLiteDB
	garmin      *garmin.Client
	syncService *sync.SyncService
	sessions    *session.Store
	scheduler   *scheduler.Scheduler
	server      *web.Server
	shutdown    chan os.Signal
}

func main() {
	Execute()
}

func newApp(cfg *config.Config, log zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		shutdown: make(chan os.Signal, 1),
	}
}

func (app *App) init() error {
	var err error

	if err := app.cfg.EnsureDirs(); err != nil {
		return err
	}

	// Initialize database
	app.db, err = database.NewSQLiteDB(app.cfg.DBPath)
	if err != nil {
		return err
	}

	// Initialize Garmin client
	app.garmin = garmin.NewClient(app.cfg.GarminAPIURL, app.cfg.HTTPTimeout, app.log)

	// Initialize sync service
	app.syncService = newSyncService(app.cfg, app.garmin, app.db, app.log)

	app.sessions = session.NewStore(app.cfg.SessionIdleTimeout,
		session.Preferences{LoadMethod: "duration_hr"}, app.log)

	// Setup cron scheduler
	app.scheduler = scheduler.New(app.log)
	if err := app.scheduler.AddJob(sessionSweepSchedule, scheduler.NewSessionSweepJob(app.sessions, app.log)); err != nil {
		return err
	}
	if app.cfg.SweepSchedule != "" {
		job := scheduler.NewTempSweepJob(app.cfg.CacheDir(), scheduler.TempMaxAge, app.log)
		if err := app.scheduler.AddJob(app.cfg.SweepSchedule, job); err != nil {
			return err
		}
	}

	// Setup HTTP server
	app.server, err = web.New(web.Config{
		Addr:             app.cfg.ListenAddr,
		Log:              app.log,
		Sessions:         app.sessions,
		Auth:             app.garmin,
		Data:             app.syncService,
		Catalog:          app.db,
		DefaultRangeDays: app.cfg.DefaultRangeDays,
		DevMode:          app.cfg.LogLevel == "debug",
	})
	return err
}

func newSyncService(cfg *config.Config, client *garmin.Client, db *database.SQLiteDB, log zerolog.Logger) *sync.SyncService {
	return sync.NewSyncService(client, db, sync.Options{
		CacheRoot:         cfg.CacheDir(),
		RefreshRecentDays: cfg.RefreshRecentDays,
		RecentMaxAge:      cfg.RecentMaxAge,
	}, log)
}

func (app *App) start() {
	// Start cron scheduler
	app.scheduler.Start()

	// Start web server
	go func() {
		if err := app.server.Start(); err != nil {
			app.log.Error().Err(err).Msg("Server error")
			app.shutdown <- syscall.SIGTERM
		}
	}()
}

func (app *App) stop() {
	app.log.Info().Msg("Shutting down...")

	// Stop cron
	app.scheduler.Stop()

	// Stop web server
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.log.Error().Err(err).Msg("Server shutdown error")
	}

	// Close database
	if app.db != nil {
		app.db.Close()
	}

	app.log.Info().Msg("Shutdown complete")
}

// run serves until SIGINT or SIGTERM.
func (app *App) run() error {
	// Initialize components
	if err := app.init(); err != nil {
		if app.db != nil {
			app.db.Close()
		}
		return err
	}

	// Start services
	app.start()

	// Wait for shutdown signal
	signal.Notify(app.shutdown, os.Interrupt, syscall.SIGTERM)
	<-app.shutdown

	// Graceful shutdown
	app.stop()
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)
	return log
}
