package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sstent/garmindash/internal/analysis"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/session"
)

// pageData is what every page template receives.
type pageData struct {
	Title          string
	Active         string
	LoggedIn       bool
	HasCredentials bool
	User           string
	Prefs          session.Preferences
	LoadMethods    []analysis.LoadMethod
	Error          string
	Notice         string
	Charts         []template.HTML
	Body           interface{}
}

func (s *Server) newPage(c *gin.Context, active, title string) *pageData {
	sess := currentSession(c)
	p := &pageData{
		Title:          title,
		Active:         active,
		LoggedIn:       sess.Authenticated(),
		HasCredentials: sess.HasCredentials(),
		User:           sess.DisplayName(),
		Prefs:          sess.Preferences(),
		LoadMethods:    analysis.LoadMethods,
	}
	if p.Prefs.Range.Start.IsZero() {
		p.Prefs.Range = models.LastDays(s.now(), s.days)
	}
	if msg, err := c.Cookie(flashCookie); err == nil && msg != "" {
		p.Notice = msg
		c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	}
	return p
}

// render executes a page. Rendering into a buffer first keeps a template
// failure from sending a half-written page with a 200 status.
func (s *Server) render(c *gin.Context, status int, page string, data *pageData) {
	var buf bytes.Buffer
	if err := s.renderTemplate(&buf, page, data); err != nil {
		s.log.Error().Err(err).Str("page", page).Msg("Template rendering failed")
		c.String(http.StatusInternalServerError, "Failed to render page")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// renderError shows err on page with the status matching its kind.
func (s *Server) renderError(c *gin.Context, page string, data *pageData, err error) {
	status, msg := describeError(err)
	data.Error = msg
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	} else {
		s.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	s.render(c, status, page, data)
}

// describeError maps the error taxonomy onto an HTTP status and the message
// shown to the user.
func describeError(err error) (int, string) {
	e, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError, "Unexpected error: " + err.Error()
	}

	msg := e.UserMessage()
	switch e.Code {
	case errors.ErrAuth:
		return http.StatusUnauthorized, msg
	case errors.ErrFetch:
		return http.StatusBadGateway, msg
	case errors.ErrInput:
		return http.StatusBadRequest, msg
	default:
		return http.StatusInternalServerError, msg
	}
}
