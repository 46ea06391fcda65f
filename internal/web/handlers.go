package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sstent/garmindash/internal/analysis"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/session"
)

const flashCookie = "garmindash_flash"

// redirect sends the browser to a GET page, carrying notice in a short-lived
// cookie.
func (s *Server) redirect(c *gin.Context, to, notice string) {
	if notice != "" {
		c.SetCookie(flashCookie, notice, 60, "/", "", false, true)
	}
	c.Redirect(http.StatusSeeOther, to)
}

// Index is the landing page: a login prompt, or the running summary of the
// selected range.
func (s *Server) Index(c *gin.Context) {
	page := s.newPage(c, "home", "Overview")
	if !page.LoggedIn {
		s.render(c, http.StatusOK, "index", page)
		return
	}

	data, ok := s.load(c, "index", page, models.MetricActivities)
	if !ok {
		return
	}
	runs := analysis.Runs(models.ActivitiesFromRecords(data[models.MetricActivities]))
	page.Body = overviewBody{
		Summary:    analysis.SummarizeRuns(runs),
		Efficiency: analysis.AerobicEfficiency(analysis.Zone2Runs(runs, page.Prefs.MaxHR)),
	}
	s.render(c, http.StatusOK, "index", page)
}

type overviewBody struct {
	Summary    analysis.RunningSummary
	Efficiency float64
}

// Login stores the submitted credentials in the session and authenticates.
// Rejected credentials are dropped again.
func (s *Server) Login(c *gin.Context) {
	sess := currentSession(c)

	creds, err := session.NewCredentials(c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		s.renderError(c, "index", s.newPage(c, "home", "Overview"), err)
		return
	}

	sess.SetCredentials(creds)
	if err := sess.Authenticate(c.Request.Context(), s.auth); err != nil {
		sess.SetCredentials(session.Credentials{})
		s.renderError(c, "index", s.newPage(c, "home", "Overview"), err)
		return
	}

	s.log.Info().Str("session", sess.ID).Msg("Logged in to Garmin Connect")
	s.redirect(c, "/", "Logged in as "+sess.DisplayName())
}

// Logout ends the session, wiping the held credentials.
func (s *Server) Logout(c *gin.Context) {
	sess := currentSession(c)
	s.sessions.End(sess.ID)
	s.setSessionCookie(c, "", -1)
	s.redirect(c, "/", "Logged out")
}

// Reconnect logs in again with the credentials held by the session.
func (s *Server) Reconnect(c *gin.Context) {
	sess := currentSession(c)
	sess.ClearToken()
	if err := sess.Authenticate(c.Request.Context(), s.auth); err != nil {
		s.renderError(c, "index", s.newPage(c, "home", "Overview"), err)
		return
	}
	s.redirect(c, safeNext(c.PostForm("next")), "Reconnected to Garmin Connect")
}

type filterForm struct {
	Start        string  `form:"start"`
	End          string  `form:"end"`
	ForceRefresh bool    `form:"force_refresh"`
	MaxHR        float64 `form:"max_hr"`
	RestingHR    float64 `form:"resting_hr"`
	LoadMethod   string  `form:"load_method"`
	Next         string  `form:"next"`
}

// Filters updates the session's date range and analysis settings.
func (s *Server) Filters(c *gin.Context) {
	sess := currentSession(c)

	var form filterForm
	if err := c.ShouldBind(&form); err != nil {
		s.renderError(c, "index", s.newPage(c, "home", "Overview"),
			errors.WrapWithCode(err, errors.ErrInput, "Invalid filter values", "Use numbers for heart rates"))
		return
	}

	prefs, err := s.applyFilters(sess.Preferences(), form)
	if err != nil {
		s.renderError(c, "index", s.newPage(c, "home", "Overview"), err)
		return
	}
	sess.SetPreferences(prefs)
	s.redirect(c, safeNext(form.Next), "")
}

func (s *Server) applyFilters(prefs session.Preferences, form filterForm) (session.Preferences, error) {
	r, err := models.ParseDateRange(form.Start, form.End)
	if err != nil {
		return prefs, errors.WrapWithCode(err, errors.ErrInput, "Invalid date range", "Use YYYY-MM-DD dates with the start on or before the end")
	}
	if err := r.Validate(s.now()); err != nil {
		return prefs, errors.WrapWithCode(err, errors.ErrInput, "Invalid date range", "Pick an end date on or before today")
	}

	method, err := analysis.ParseLoadMethod(form.LoadMethod)
	if err != nil {
		return prefs, errors.WrapWithCode(err, errors.ErrInput, "Unknown training load method", "Pick one of the listed methods")
	}

	if form.MaxHR < 0 || form.RestingHR < 0 || (form.MaxHR > 0 && form.RestingHR >= form.MaxHR) {
		return prefs, errors.New(errors.ErrInput, "Invalid heart rate settings", "Resting HR must be below max HR")
	}

	prefs.Range = r
	prefs.ForceRefresh = form.ForceRefresh
	prefs.MaxHR = form.MaxHR
	prefs.RestingHR = form.RestingHR
	prefs.LoadMethod = string(method)
	return prefs, nil
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}
