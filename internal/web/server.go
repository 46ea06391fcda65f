package web

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/session"
	"github.com/sstent/garmindash/internal/sync"
)

// DataSource serves cached or freshly fetched records. *sync.SyncService
// implements it.
type DataSource interface {
	Load(ctx context.Context, acct sync.Account, metrics []models.MetricType, r models.DateRange, force bool) (map[models.MetricType][]models.Record, error)
	Invalidate(username string, key cache.Key) error
}

// Catalog lists cache entries. *database.SQLiteDB implements it.
type Catalog interface {
	ListEntries(filters database.EntryFilters) ([]database.CacheEntry, error)
	GetStats(user string) (*database.Stats, error)
}

// Config holds server configuration
type Config struct {
	Addr     string
	Log      zerolog.Logger
	Sessions *session.Store
	Auth     session.Authenticator
	Data     DataSource
	// Catalog may be nil, in which case the cache page is empty.
	Catalog Catalog
	// DefaultRangeDays is the range shown until the user picks one.
	DefaultRangeDays int
	DevMode          bool
}

// Server is the dashboard HTTP server.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	log      zerolog.Logger
	sessions *session.Store
	auth     session.Authenticator
	data     DataSource
	catalog  Catalog
	pages    map[string]*template.Template
	days     int
	now      func() time.Time
}

// New builds the router and parses the embedded templates.
func New(cfg Config) (*Server, error) {
	if !cfg.DevMode && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:   gin.New(),
		log:      cfg.Log.With().Str("component", "web").Logger(),
		sessions: cfg.Sessions,
		auth:     cfg.Auth,
		data:     cfg.Data,
		catalog:  cfg.Catalog,
		days:     cfg.DefaultRangeDays,
		now:      time.Now,
	}
	if err := s.LoadTemplates(); err != nil {
		return nil, err
	}

	s.router.Use(gin.Recovery(), s.loggingMiddleware(), s.sessionMiddleware())
	s.RegisterRoutes(s.router)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// RegisterRoutes mounts every dashboard page on router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health-check", s.HealthCheck)

	router.GET("/", s.Index)
	router.POST("/login", s.Login)
	router.POST("/logout", s.Logout)
	router.POST("/reconnect", s.Reconnect)
	router.POST("/filters", s.Filters)

	router.GET("/health", s.HealthPage)
	router.GET("/running", s.RunningPage)
	router.GET("/training-load", s.TrainingLoadPage)
	router.GET("/correlations", s.CorrelationsPage)
	router.GET("/records", s.RecordsPage)

	router.GET("/cache", s.CachePage)
	router.POST("/cache/delete", s.CacheDelete)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
