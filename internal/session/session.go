package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/garmin"
	"github.com/sstent/garmindash/internal/models"
)

// Authenticator exchanges a username and password for an upstream token.
// *garmin.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (garmin.Token, error)
}

// Preferences are the dashboard controls a user has set for this session.
type Preferences struct {
	Range        models.DateRange
	ForceRefresh bool
	MaxHR        float64
	RestingHR    float64
	LoadMethod   string
}

// Session is one browser's login state.
type Session struct {
	ID string

	mu          sync.Mutex
	creds       Credentials
	token       string
	displayName string
	prefs       Preferences
	lastSeen    time.Time
	ended       bool
}

// SetCredentials replaces the held credentials and drops any token obtained
// with the previous ones.
func (s *Session) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	s.token = ""
	s.displayName = ""
}

// Authenticate logs in with the held credentials. The credentials are only
// ever handed to auth.
func (s *Session) Authenticate(ctx context.Context, auth Authenticator) error {
	s.mu.Lock()
	creds := s.creds
	ended := s.ended
	s.mu.Unlock()

	if ended || creds.IsZero() {
		return errors.Auth("No credentials for this session", nil)
	}

	token, err := auth.Login(ctx, creds.username, creds.password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return errors.Auth("Session ended during login", nil)
	}
	s.token = token.Value
	s.displayName = token.DisplayName
	return nil
}

// Token returns the upstream token or an AuthenticationError when the session
// is not logged in.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.token == "" {
		return "", errors.Auth("Not logged in to Garmin Connect", nil)
	}
	return s.token, nil
}

// ClearToken forgets the upstream token but keeps the credentials so the user
// can reconnect.
func (s *Session) ClearToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

func (s *Session) Authenticated() bool {
	_, err := s.Token()
	return err == nil
}

// HasCredentials reports whether a reconnect is possible.
func (s *Session) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && !s.creds.IsZero()
}

// Username is the login name, used to scope the cache.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.username
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.displayName != "" {
		return s.displayName
	}
	return s.creds.username
}

func (s *Session) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (s *Session) SetPreferences(p Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
}

// end wipes the credentials and token. The session cannot be used again.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.wipe()
	s.token = ""
	s.displayName = ""
	s.ended = true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Store keeps sessions in memory, keyed by a random ID.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	defaults Preferences
	now      func() time.Time
	log      zerolog.Logger
}

// NewStore creates an empty store. Sessions idle for longer than idle are
// ended on lookup or sweep; zero disables expiry.
func NewStore(idle time.Duration, defaults Preferences, log zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		idle:     idle,
		defaults: defaults,
		now:      time.Now,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Create starts a new anonymous session.
func (st *Store) Create() *Session {
	s := &Session{ID: uuid.NewString(), prefs: st.defaults}
	s.touch(st.now())

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns a live session, or false if it does not exist or has expired.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, false
	}

	now := st.now()
	if st.idle > 0 && s.idleSince(now) > st.idle {
		st.End(id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// End wipes and forgets the session.
func (st *Store) End(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.end()
		st.log.Debug().Str("session", id).Msg("Session ended")
	}
}

// Sweep ends every expired session and reports how many were removed.
func (st *Store) Sweep() int {
	if st.idle <= 0 {
		return 0
	}
	now := st.now()

	st.mu.Lock()
	var expired []string
	for id, s := range st.sessions {
		if s.idleSince(now) > st.idle {
			expired = append(expired, id)
		}
	}
	st.mu.Unlock()

	for _, id := range expired {
		st.End(id)
	}
	return len(expired)
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
