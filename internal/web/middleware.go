package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sstent/garmindash/internal/session"
)

const (
	sessionCookie = "garmindash_session"
	sessionKey    = "session"
)

// loggingMiddleware logs HTTP requests. Form bodies are never logged.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("duration_ms", time.Since(start)).
			Msg("HTTP request")
	}
}

// sessionMiddleware attaches the caller's session, starting a new one when
// the cookie is missing or the session expired.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *session.Session
		if id, err := c.Cookie(sessionCookie); err == nil {
			sess, _ = s.sessions.Get(id)
		}
		if sess == nil {
			sess = s.sessions.Create()
			s.setSessionCookie(c, sess.ID, 0)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func (s *Server) setSessionCookie(c *gin.Context, id string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, maxAge, "/", "", false, true)
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
