package web

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/garmindash/internal/cache"
	"github.com/sstent/garmindash/internal/database"
	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/garmin"
	"github.com/sstent/garmindash/internal/models"
	"github.com/sstent/garmindash/internal/session"
	"github.com/sstent/garmindash/internal/sync"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var today = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeAuth struct {
	calls int
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (garmin.Token, error) {
	f.calls++
	if password != "secret" {
		return garmin.Token{}, errors.Auth("Garmin Connect rejected the username or password", nil)
	}
	return garmin.Token{Value: "tok", DisplayName: "Runner"}, nil
}

type fakeData struct {
	calls       int
	metrics     []models.MetricType
	records     map[models.MetricType][]models.Record
	err         error
	invalidated []cache.Key
}

func (f *fakeData) Load(ctx context.Context, acct sync.Account, metrics []models.MetricType, r models.DateRange, force bool) (map[models.MetricType][]models.Record, error) {
	f.calls++
	f.metrics = metrics
	if _, err := acct.Token(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	out := map[models.MetricType][]models.Record{}
	for _, m := range metrics {
		out[m] = f.records[m]
	}
	return out, nil
}

func (f *fakeData) Invalidate(username string, key cache.Key) error {
	f.invalidated = append(f.invalidated, key)
	return nil
}

type fakeCatalog struct {
	entries []database.CacheEntry
}

func (f *fakeCatalog) ListEntries(filters database.EntryFilters) ([]database.CacheEntry, error) {
	return f.entries, nil
}

func (f *fakeCatalog) GetStats(user string) (*database.Stats, error) {
	stats := &database.Stats{ByMetric: map[string]int{}}
	for _, e := range f.entries {
		stats.Entries++
		stats.Records += e.RecordCount
		stats.ByMetric[e.Metric]++
	}
	return stats, nil
}

type testServer struct {
	*Server
	auth    *fakeAuth
	data    *fakeData
	catalog *fakeCatalog
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLog(t, zerolog.Nop())
}

func newTestServerWithLog(t *testing.T, log zerolog.Logger) *testServer {
	t.Helper()
	ts := &testServer{
		auth:    &fakeAuth{},
		data:    &fakeData{records: sampleRecords()},
		catalog: &fakeCatalog{},
	}
	srv, err := New(Config{
		Log:              log,
		Sessions:         session.NewStore(time.Hour, session.Preferences{LoadMethod: "duration_hr"}, log),
		Auth:             ts.auth,
		Data:             ts.data,
		Catalog:          ts.catalog,
		DefaultRangeDays: 7,
	})
	require.NoError(t, err)
	srv.now = func() time.Time { return today }
	ts.Server = srv
	return ts
}

// do sends a request carrying the session cookie from earlier responses.
func (ts *testServer) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			ts.cookies = []*http.Cookie{c}
		}
	}
	return w
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	w := ts.do(http.MethodPost, "/login", url.Values{"username": {"runner@example.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
}

func sampleRecords() map[models.MetricType][]models.Record {
	runs := []models.Activity{
		{ID: "1", Name: "Easy run", Type: "running", StartTime: time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC),
			DurationSeconds: 1800, DistanceMeters: 5000, AvgHR: 130, MaxHR: 150, AvgCadence: 168,
			AerobicTE: 2.5, ZoneSeconds: [5]float64{300, 1200, 300, 0, 0}},
		{ID: "2", Name: "Long run", Type: "running", StartTime: time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC),
			DurationSeconds: 4200, DistanceMeters: 12000, AvgHR: 140, MaxHR: 170, VO2Max: 52,
			AerobicTE: 3.4, ZoneSeconds: [5]float64{600, 2400, 1200, 0, 0}},
	}
	var acts []models.Record
	for _, a := range runs {
		acts = append(acts, a.Records()...)
	}

	var hrv, sleep, daily []models.Record
	for i, d := range []string{"2024-01-08", "2024-01-09", "2024-01-10"} {
		v := float64(i)
		hrv = append(hrv, models.DailyRecord(models.MetricHRV, d, models.FieldHRVLastNight, 50+v))
		sleep = append(sleep,
			models.DailyRecord(models.MetricSleep, d, models.FieldSleepDuration, 420+30*v),
			models.DailyRecord(models.MetricSleep, d, models.FieldSleepDeep, 90),
			models.DailyRecord(models.MetricSleep, d, models.FieldSleepScore, 80))
		daily = append(daily,
			models.DailyRecord(models.MetricDailySummary, d, models.FieldRestingHR, 50),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldAvgStress, 30),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldTotalSteps, 9000),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldActiveCalories, 500+100*v),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldBodyBatteryWake, 70+v),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldHighlyActiveMin, 30),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldSedentaryMin, 600),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldModerateIntensity, 20),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldVigorousIntensity, 10),
			models.DailyRecord(models.MetricDailySummary, d, models.FieldIntensityMinGoal, 150))
	}

	return map[models.MetricType][]models.Record{
		models.MetricActivities:   acts,
		models.MetricHRV:          hrv,
		models.MetricSleep:        sleep,
		models.MetricDailySummary: daily,
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health-check", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestIndexWithoutLogin(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)
	assert.Contains(t, w.Body.String(), `value="2024-01-04"`)
	assert.Equal(t, 0, ts.data.calls)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	assert.Equal(t, 1, ts.auth.calls)

	w := ts.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Logged in as")
	assert.Contains(t, body, "Runner")
	assert.NotContains(t, body, "secret")
	assert.Equal(t, 1, ts.data.calls)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/login", url.Values{"username": {"runner@example.com"}, "password": {"wrong"}})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "rejected the username or password")
	assert.Equal(t, 0, ts.data.calls)

	// Rejected credentials are not kept for a reconnect.
	w = ts.do(http.MethodGet, "/", nil)
	assert.NotContains(t, w.Body.String(), `action="/reconnect"`)
}

func TestLoginMissingFields(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/login", url.Values{"username": {"runner"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ts.auth.calls)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodPost, "/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, w.Code)

	w = ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDataPageRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/running", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Not logged in")
}

func TestPagesRender(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	tests := []struct {
		path string
		want string
	}{
		{"/health", "Heart Rate Variability"},
		{"/running", "Aerobic Efficiency"},
		{"/training-load", "Acute:Chronic Workload Ratio"},
		{"/correlations", "Pearson r"},
		{"/records", "Fastest races"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := ts.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestLoginDoesNotLogCredentials(t *testing.T) {
	var buf bytes.Buffer
	ts := newTestServerWithLog(t, zerolog.New(&buf))
	ts.login(t)

	logs := buf.String()
	assert.Contains(t, logs, "Logged in to Garmin Connect")
	assert.NotContains(t, logs, "runner@example.com")
	assert.NotContains(t, logs, "secret")
}

func TestHealthPageWellnessPanels(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, title := range []string{"Morning Body Battery", "Activity Levels", "Intensity Minutes", "Sleep vs Next Day"} {
		assert.Contains(t, body, title)
	}
	// latest morning value, and the week of 2024-01-08 so far
	assert.Contains(t, body, `<div class="value">72</div>`)
	assert.Contains(t, body, "120 / 150")
	assert.Contains(t, body, "Below goal")
}

func TestRunningPageProgressionCharts(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodGet, "/running", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Long Run Progression")
	assert.Contains(t, w.Body.String(), "Pace vs Average HR")
}

func TestCorrelationsExplorer(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodGet, "/correlations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Key relationships")
	assert.Contains(t, body, "Average stress vs Resting HR")
	assert.Contains(t, body, `<option value="avg_stress" selected>`)
	assert.Contains(t, ts.data.metrics, models.MetricDailySummary)

	w = ts.do(http.MethodGet, "/correlations?x=sleep_hours&y=resting_hr&next=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, `<option value="sleep_hours" selected>`)
	assert.Contains(t, body, `<option value="resting_hr" selected>`)
	assert.Contains(t, body, `name="next" value="true" checked`)
}

func TestCorrelationsExplorerRejectsUnknownMetric(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	calls := ts.data.calls

	for _, q := range []string{"x=hrv&y=bogus", "x=hrv&y=hrv"} {
		w := ts.do(http.MethodGet, "/correlations?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Contains(t, w.Body.String(), `class="error"`, q)
	}
	assert.Equal(t, calls, ts.data.calls, "nothing is loaded for an invalid pair")
}

func TestRecordsPage(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodGet, "/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "30:00")
	assert.Contains(t, body, "12.0 km")
}

func TestTrainingLoadFetchesHeartRateForBanister(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	ts.do(http.MethodGet, "/training-load", nil)
	assert.NotContains(t, ts.data.metrics, models.MetricHeartRate)

	w := ts.do(http.MethodPost, "/filters", url.Values{
		"start":       {"2024-01-01"},
		"end":         {"2024-01-10"},
		"load_method": {"trimp_banister"},
		"next":        {"/training-load"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = ts.do(http.MethodGet, "/training-load", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, ts.data.metrics, models.MetricHeartRate)
}

func TestFetchErrorIsShown(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	ts.data.err = errors.Fetch(errors.KindNetwork, "Could not reach Garmin Connect", stderrors.New("connection reset"))

	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Could not reach Garmin Connect")
}

func TestUpstreamAuthErrorClearsToken(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	ts.data.err = errors.Auth("Garmin Connect session expired", nil)

	w := ts.do(http.MethodGet, "/running", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `action="/reconnect"`)

	ts.data.err = nil
	w = ts.do(http.MethodPost, "/reconnect", url.Values{"next": {"/running"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/running", w.Header().Get("Location"))
	assert.Equal(t, 2, ts.auth.calls)

	w = ts.do(http.MethodGet, "/running", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReconnectFromOverviewReturnsHome(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	ts.data.err = errors.Auth("Garmin Connect session expired", nil)
	ts.do(http.MethodGet, "/running", nil)
	ts.data.err = nil

	w := ts.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `action="/reconnect"`)
	assert.Contains(t, body, `<input type="hidden" name="next" value="/">`)
	assert.NotContains(t, body, `value="/home"`)

	w = ts.do(http.MethodPost, "/reconnect", url.Values{"next": {"/"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	w := ts.do(http.MethodPost, "/filters", url.Values{
		"start":         {"2024-01-01"},
		"end":           {"2024-01-07"},
		"max_hr":        {"190"},
		"resting_hr":    {"48"},
		"force_refresh": {"true"},
		"next":          {"/health"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/health", w.Header().Get("Location"))

	w = ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="2024-01-07"`)
	assert.Contains(t, w.Body.String(), `value="190"`)

	// force refresh is used up by the first load
	w = ts.do(http.MethodGet, "/health", nil)
	assert.NotContains(t, w.Body.String(), `value="true" checked`)
}

func TestFiltersValidation(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"start after end", url.Values{"start": {"2024-01-07"}, "end": {"2024-01-01"}}},
		{"future end", url.Values{"start": {"2024-01-01"}, "end": {"2024-02-01"}}},
		{"bad date", url.Values{"start": {"01/01/2024"}, "end": {"2024-01-07"}}},
		{"unknown method", url.Values{"start": {"2024-01-01"}, "end": {"2024-01-07"}, "load_method": {"magic"}}},
		{"resting above max", url.Values{"start": {"2024-01-01"}, "end": {"2024-01-07"}, "max_hr": {"150"}, "resting_hr": {"160"}}},
		{"not a number", url.Values{"start": {"2024-01-01"}, "end": {"2024-01-07"}, "max_hr": {"fast"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(http.MethodPost, "/filters", tt.form)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `class="error"`)
		})
	}
}

func TestCachePage(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.entries = []database.CacheEntry{
		{User: cache.UserDir("runner@example.com"), Metric: "daily_summary", StartDate: "2024-01-01", EndDate: "2024-01-07", RecordCount: 21, FetchedAt: today},
	}

	w := ts.do(http.MethodGet, "/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Log in to see")

	ts.login(t)
	w = ts.do(http.MethodGet, "/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Daily Summary")
	assert.Contains(t, w.Body.String(), "2024-01-07")
}

func TestCacheDelete(t *testing.T) {
	ts := newTestServer(t)

	form := url.Values{"metric": {"hrv"}, "start": {"2024-01-01"}, "end": {"2024-01-07"}}
	w := ts.do(http.MethodPost, "/cache/delete", form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ts.data.invalidated)

	ts.login(t)
	w = ts.do(http.MethodPost, "/cache/delete", form)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/cache", w.Header().Get("Location"))
	require.Len(t, ts.data.invalidated, 1)
	assert.Equal(t, models.MetricHRV, ts.data.invalidated[0].Metric)

	w = ts.do(http.MethodPost, "/cache/delete", url.Values{"metric": {"steps"}, "start": {"2024-01-01"}, "end": {"2024-01-07"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{errors.Auth("Bad login", nil), http.StatusUnauthorized, "Bad login"},
		{errors.Fetch(errors.KindSchema, "Unexpected response", nil), http.StatusBadGateway, "Unexpected response"},
		{errors.RateLimited("Too many requests", time.Minute), http.StatusBadGateway, "Too many requests"},
		{errors.CacheIO("Disk full", nil), http.StatusInternalServerError, "Disk full"},
		{errors.New(errors.ErrInput, "Bad range", ""), http.StatusBadRequest, "Bad range"},
		{stderrors.New("boom"), http.StatusInternalServerError, "Unexpected error: boom"},
	}
	for _, tt := range tests {
		status, msg := describeError(tt.err)
		assert.Equal(t, tt.status, status)
		assert.Contains(t, msg, tt.msg)
	}
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/running", safeNext("/running"))
	assert.Equal(t, "/", safeNext(""))
	assert.Equal(t, "/", safeNext("https://evil.example"))
	assert.Equal(t, "/", safeNext("//evil.example"))
}
