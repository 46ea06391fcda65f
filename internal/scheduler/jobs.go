package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/cache"
)

// TempMaxAge is how old a temporary cache file must be before it is treated
// as left over from an interrupted write.
const TempMaxAge = time.Hour

// TempSweepJob removes orphaned temporary files from every user's cache
// directory. Complete entries are never touched.
type TempSweepJob struct {
	log    zerolog.Logger
	root   string
	maxAge time.Duration
}

// NewTempSweepJob creates a sweep over the cache root. A non-positive maxAge
// selects TempMaxAge.
func NewTempSweepJob(root string, maxAge time.Duration, log zerolog.Logger) *TempSweepJob {
	if maxAge <= 0 {
		maxAge = TempMaxAge
	}
	return &TempSweepJob{
		log:    log.With().Str("job", "temp_sweep").Logger(),
		root:   root,
		maxAge: maxAge,
	}
}

// Name returns the job name
func (j *TempSweepJob) Name() string {
	return "temp_sweep"
}

// Run executes the sweep
func (j *TempSweepJob) Run() error {
	n, err := cache.SweepAll(j.root, j.maxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int("removed", n).Msg("Removed orphaned temp files")
	}
	return nil
}

// SessionStore is the part of *session.Store the sweep needs.
type SessionStore interface {
	Sweep() int
}

// SessionSweepJob ends idle sessions, wiping their credentials.
type SessionSweepJob struct {
	log   zerolog.Logger
	store SessionStore
}

func NewSessionSweepJob(store SessionStore, log zerolog.Logger) *SessionSweepJob {
	return &SessionSweepJob{
		log:   log.With().Str("job", "session_sweep").Logger(),
		store: store,
	}
}

// Name returns the job name
func (j *SessionSweepJob) Name() string {
	return "session_sweep"
}

func (j *SessionSweepJob) Run() error {
	if n := j.store.Sweep(); n > 0 {
		j.log.Debug().Int("ended", n).Msg("Ended idle sessions")
	}
	return nil
}
