package web

import (
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sstent/garmindash/internal/analysis"
	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

// Runs shorter than this are too noisy for the pace-per-zone trend.
const minTrendRun = 10 * time.Minute

const recentRuns = 10

// load reads metrics for the session's range through the cache. On failure
// it renders the error on the page and returns false. A forced refresh
// applies to one successful load only.
func (s *Server) load(c *gin.Context, page string, data *pageData, metrics ...models.MetricType) (map[models.MetricType][]models.Record, bool) {
	sess := currentSession(c)
	prefs := data.Prefs

	out, err := s.data.Load(c.Request.Context(), sess, metrics, prefs.Range, prefs.ForceRefresh)
	if err != nil {
		if errors.IsCode(err, errors.ErrAuth) && sess.Authenticated() {
			// Upstream rejected the token; the user can reconnect from the sidebar.
			sess.ClearToken()
			data.LoggedIn = false
		}
		s.renderError(c, page, data, err)
		return nil, false
	}

	if prefs.ForceRefresh {
		stored := sess.Preferences()
		stored.ForceRefresh = false
		sess.SetPreferences(stored)
		data.Prefs.ForceRefresh = false
	}
	return out, true
}

type healthBody struct {
	Nights     []analysis.SleepNight
	AvgHRV     float64
	HRVStatus  string
	AvgRHR     float64
	AvgSleep   float64
	AvgScore   float64
	AvgStress  float64
	TotalSteps float64

	WakeBattery float64
	Intensity   analysis.IntensityWeek
	SleepRHR    analysis.Correlation
}

// HealthPage shows HRV, resting HR, sleep, stress, body battery, intensity
// minutes and activity levels.
func (s *Server) HealthPage(c *gin.Context) {
	page := s.newPage(c, "health", "Health")
	data, ok := s.load(c, "health", page, models.MetricHRV, models.MetricSleep, models.MetricDailySummary)
	if !ok {
		return
	}

	hrv := analysis.HRVTrend(data[models.MetricHRV])
	nights := analysis.SleepNights(data[models.MetricSleep])
	days := analysis.DailySummaries(data[models.MetricDailySummary])
	rhr := analysis.DailySeries(data[models.MetricDailySummary], models.MetricDailySummary, models.FieldRestingHR)
	score := analysis.DailySeries(data[models.MetricSleep], models.MetricSleep, models.FieldSleepScore)
	stress := analysis.DailySeries(data[models.MetricDailySummary], models.MetricDailySummary, models.FieldAvgStress)
	steps := analysis.DailySeries(data[models.MetricDailySummary], models.MetricDailySummary, models.FieldTotalSteps)

	body := healthBody{
		Nights:     nights,
		AvgRHR:     analysis.Mean(rhr),
		AvgScore:   analysis.Mean(score),
		AvgStress:  analysis.Mean(stress),
		TotalSteps: analysis.Sum(steps),
	}
	hrvPoints := make([]analysis.Point, len(hrv))
	for i, d := range hrv {
		hrvPoints[i] = analysis.Point{Date: d.Date, Value: d.LastNight}
	}
	body.AvgHRV = analysis.Mean(hrvPoints)
	if len(hrv) > 0 {
		body.HRVStatus = hrv[len(hrv)-1].Status
	}
	sleepHours := make([]analysis.Point, len(nights))
	for i, n := range nights {
		sleepHours[i] = analysis.Point{Date: n.Date, Value: n.Hours()}
	}
	body.AvgSleep = analysis.Mean(sleepHours)

	battery := analysis.BodyBattery(days, nights)
	if len(battery) > 0 {
		body.WakeBattery = battery[len(battery)-1].Wake
	}
	intensity := analysis.WeeklyIntensity(days)
	if len(intensity) > 0 {
		body.Intensity = intensity[len(intensity)-1]
	}
	body.SleepRHR = analysis.SleepNextDayRHR(nights, days)

	page.Body = body
	page.Charts = []template.HTML{
		s.embedChart(hrvChart(hrv)),
		s.embedChart(seriesChart("Resting Heart Rate", "bpm", "Resting HR", rhr)),
		s.embedChart(sleepStagesChart(nights)),
		s.embedChart(seriesChart("Sleep Score", "", "Score", score)),
		s.embedChart(stressChart(analysis.StressBuckets(days))),
		s.embedChart(bodyBatteryChart(battery)),
		s.embedChart(activityLevelChart(analysis.WeeklyActivityLevels(days))),
		s.embedChart(intensityChart(intensity)),
		s.embedChart(correlationChart(body.SleepRHR, scatterLabels{
			Title:    "Sleep vs Next Day's Resting HR",
			Subtitle: "Hours slept against the following day's resting HR",
			X:        "Sleep (h)",
			Y:        "Resting HR (bpm)",
			Series:   "Nights",
		})),
	}
	s.render(c, http.StatusOK, "health", page)
}

type runningBody struct {
	Summary    analysis.RunningSummary
	Zone2Runs  int
	Efficiency float64
	Recent     []models.Activity
}

// RunningPage shows aerobic efficiency, zone distribution, pace by zone and
// VO2max for running activities.
func (s *Server) RunningPage(c *gin.Context) {
	page := s.newPage(c, "running", "Running")
	data, ok := s.load(c, "running", page, models.MetricActivities)
	if !ok {
		return
	}

	runs := analysis.Runs(models.ActivitiesFromRecords(data[models.MetricActivities]))
	zone2 := analysis.Zone2Runs(runs, page.Prefs.MaxHR)

	var vo2 []analysis.Point
	for _, r := range runs {
		if r.VO2Max > 0 {
			vo2 = append(vo2, analysis.Point{Date: models.Day(r.StartTime), Value: r.VO2Max})
		}
	}

	recent := make([]models.Activity, len(runs))
	copy(recent, runs)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartTime.After(recent[j].StartTime) })
	if len(recent) > recentRuns {
		recent = recent[:recentRuns]
	}

	page.Body = runningBody{
		Summary:    analysis.SummarizeRuns(runs),
		Zone2Runs:  len(zone2),
		Efficiency: analysis.AerobicEfficiency(zone2),
		Recent:     recent,
	}
	page.Charts = []template.HTML{
		s.embedChart(efficiencyChart(analysis.AerobicEfficiencySeries(zone2))),
		s.embedChart(zoneDistributionChart(analysis.ZoneDistribution(runs))),
		s.embedChart(paceByZoneChart(analysis.PacePerZoneTrend(runs, analysis.DefaultZones, minTrendRun))),
		s.embedChart(seriesChart("VO2max", "Estimated by the watch", "VO2max", vo2)),
		s.embedChart(longRunChart(analysis.LongestRunPerWeek(runs))),
		s.embedChart(paceHRChart(analysis.PaceVsHR(runs))),
	}
	s.render(c, http.StatusOK, "running", page)
}

type loadBody struct {
	Method     analysis.LoadMethod
	Profile    analysis.HRProfile
	TotalLoad  float64
	Latest     analysis.ACWRPoint
	HasLatest  bool
	Activities []models.Activity
}

// TrainingLoadPage shows daily load and the acute:chronic workload ratio.
// Heart-rate series are only fetched for the Banister method.
func (s *Server) TrainingLoadPage(c *gin.Context) {
	page := s.newPage(c, "training-load", "Training Load")
	method, err := analysis.ParseLoadMethod(page.Prefs.LoadMethod)
	if err != nil {
		method = analysis.LoadDurationHR
	}

	metrics := []models.MetricType{models.MetricActivities, models.MetricDailySummary}
	if method == analysis.LoadTRIMPBanister {
		metrics = append(metrics, models.MetricHeartRate)
	}
	data, ok := s.load(c, "training_load", page, metrics...)
	if !ok {
		return
	}

	acts := models.ActivitiesFromRecords(data[models.MetricActivities])
	profile := hrProfile(page.Prefs.MaxHR, page.Prefs.RestingHR, acts, data[models.MetricDailySummary])
	hr := models.HRSeriesByActivity(data[models.MetricHeartRate])

	daily := analysis.DailyLoad(acts, method, hr, profile)
	acwr := analysis.ACWR(daily, page.Prefs.Range)

	withTE := make([]models.Activity, 0, len(acts))
	for _, a := range acts {
		if a.AerobicTE > 0 || a.AnaerobicTE > 0 {
			withTE = append(withTE, a)
		}
	}
	sort.SliceStable(withTE, func(i, j int) bool { return withTE[i].StartTime.After(withTE[j].StartTime) })

	body := loadBody{
		Method:     method,
		Profile:    profile,
		TotalLoad:  analysis.Sum(daily),
		Activities: withTE,
	}
	if len(acwr) > 0 {
		body.Latest, body.HasLatest = acwr[len(acwr)-1], true
	}
	page.Body = body
	page.Charts = []template.HTML{
		s.embedChart(loadChart(acwr)),
		s.embedChart(acwrChart(acwr)),
	}
	s.render(c, http.StatusOK, "training_load", page)
}

// hrProfile fills heart-rate anchors the user left blank: max HR from the
// highest activity maximum, resting HR from the mean daily resting HR.
func hrProfile(maxHR, restingHR float64, acts []models.Activity, daily []models.Record) analysis.HRProfile {
	p := analysis.HRProfile{MaxHR: maxHR, RestingHR: restingHR}
	if p.MaxHR <= 0 {
		for _, a := range acts {
			if a.MaxHR > p.MaxHR {
				p.MaxHR = a.MaxHR
			}
		}
	}
	if p.RestingHR <= 0 {
		p.RestingHR = analysis.Mean(analysis.DailySeries(daily, models.MetricDailySummary, models.FieldRestingHR))
	}
	return p
}

// pairChart is one correlation with its rendered chart.
type pairChart struct {
	Pair        analysis.MetricPair
	Correlation analysis.Correlation
	Chart       template.HTML
}

type correlationsBody struct {
	SleepHRV analysis.Correlation
	Key      []pairChart
	Custom   pairChart
	Metrics  []analysis.DailyMetric
}

// CorrelationsPage relates sleep to overnight HRV, shows the key daily
// relationships and lets the user correlate any two daily metrics through
// the x, y and next query parameters.
func (s *Server) CorrelationsPage(c *gin.Context) {
	page := s.newPage(c, "correlations", "Correlations")

	custom := analysis.DefaultPair
	if x, y := c.Query("x"), c.Query("y"); x != "" || y != "" {
		custom = analysis.MetricPair{X: x, Y: y, NextDay: c.Query("next") == "true"}
	}
	if err := custom.Validate(); err != nil {
		s.renderError(c, "correlations", page, errors.WrapWithCode(err, errors.ErrInput,
			"Pick two different daily metrics", ""))
		return
	}

	data, ok := s.load(c, "correlations", page, models.MetricSleep, models.MetricHRV, models.MetricDailySummary)
	if !ok {
		return
	}
	var all []models.Record
	for _, m := range []models.MetricType{models.MetricSleep, models.MetricHRV, models.MetricDailySummary} {
		all = append(all, data[m]...)
	}

	body := correlationsBody{
		SleepHRV: analysis.SleepHRVCorrelation(
			analysis.SleepNights(data[models.MetricSleep]),
			analysis.HRVTrend(data[models.MetricHRV]),
		),
		Metrics: analysis.DailyMetrics,
	}
	for _, pair := range analysis.KeyPairs {
		body.Key = append(body.Key, s.pairChart(pair, all))
	}
	body.Custom = s.pairChart(custom, all)

	page.Body = body
	page.Charts = []template.HTML{s.embedChart(correlationChart(body.SleepHRV, scatterLabels{
		Title:    "Sleep vs HRV",
		Subtitle: "Hours slept against overnight HRV",
		X:        "Sleep (h)",
		Y:        "HRV (ms)",
		Series:   "Nights",
	}))}
	s.render(c, http.StatusOK, "correlations", page)
}

// pairChart correlates a validated pair and renders its scatter.
func (s *Server) pairChart(pair analysis.MetricPair, records []models.Record) pairChart {
	corr, _ := pair.Correlate(records)
	x, _ := analysis.LookupDailyMetric(pair.X)
	y, _ := analysis.LookupDailyMetric(pair.Y)
	yName := y.AxisName()
	if pair.NextDay {
		yName = "Next day " + yName
	}
	return pairChart{
		Pair:        pair,
		Correlation: corr,
		Chart: s.embedChart(correlationChart(corr, scatterLabels{
			Title:  pair.Title(),
			X:      x.AxisName(),
			Y:      yName,
			Series: "Days",
		})),
	}
}

// RecordsPage lists personal bests in the selected range.
func (s *Server) RecordsPage(c *gin.Context) {
	page := s.newPage(c, "records", "Personal Records")
	data, ok := s.load(c, "records", page, models.MetricActivities)
	if !ok {
		return
	}

	runs := analysis.Runs(models.ActivitiesFromRecords(data[models.MetricActivities]))
	page.Body = analysis.PersonalRecords(runs)
	s.render(c, http.StatusOK, "records", page)
}

type cacheBody struct {
	Entries []database.CacheEntry
	Stats   *database.Stats
}

// CachePage lists the catalogued cache entries of the logged-in user.
func (s *Server) CachePage(c *gin.Context) {
	page := s.newPage(c, "cache", "Cache")
	username := currentSession(c).Username()
	if username == "" || s.catalog == nil {
		s.render(c, http.StatusOK, "cache", page)
		return
	}

	user := cache.UserDir(username)
	entries, err := s.catalog.ListEntries(database.EntryFilters{User: user, SortBy: "fetched_at", SortOrder: "desc"})
	if err != nil {
		s.renderError(c, "cache", page, errors.CacheIO("Failed to read the cache catalog", err))
		return
	}
	stats, err := s.catalog.GetStats(user)
	if err != nil {
		s.renderError(c, "cache", page, errors.CacheIO("Failed to read the cache catalog", err))
		return
	}
	page.Body = cacheBody{Entries: entries, Stats: stats}
	s.render(c, http.StatusOK, "cache", page)
}

// CacheDelete removes one cache entry so the next request refetches it.
func (s *Server) CacheDelete(c *gin.Context) {
	page := s.newPage(c, "cache", "Cache")
	username := currentSession(c).Username()
	if username == "" {
		s.renderError(c, "cache", page, errors.Auth("Log in to manage your cache", nil))
		return
	}

	metric, err := models.ParseMetricType(c.PostForm("metric"))
	if err != nil {
		s.renderError(c, "cache", page, errors.WrapWithCode(err, errors.ErrInput, "Unknown metric", ""))
		return
	}
	r, err := models.ParseDateRange(c.PostForm("start"), c.PostForm("end"))
	if err != nil {
		s.renderError(c, "cache", page, errors.WrapWithCode(err, errors.ErrInput, "Invalid date range", ""))
		return
	}

	key := cache.Key{Metric: metric, Range: r}
	if err := s.data.Invalidate(username, key); err != nil {
		s.renderError(c, "cache", page, err)
		return
	}
	s.redirect(c, "/cache", "Removed "+key.String())
}
