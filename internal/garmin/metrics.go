package garmin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sstent/garmindash/internal/errors"
	"github.com/sstent/garmindash/internal/models"
)

// Garmin time format: "2023-08-15 12:30:45"
const garminTimeLayout = "2006-01-02 15:04:05"

type hrvBaseline struct {
	BalancedLow   *float64 `json:"balancedLow"`
	BalancedUpper *float64 `json:"balancedUpper"`
}

type hrvSummary struct {
	CalendarDate string       `json:"calendarDate"`
	LastNightAvg *float64     `json:"lastNightAvg"`
	WeeklyAvg    *float64     `json:"weeklyAvg"`
	Status       string       `json:"status"`
	Baseline     *hrvBaseline `json:"baseline"`
}

type hrvResponse struct {
	HRVSummary *hrvSummary `json:"hrvSummary"`
}

type sleepScores struct {
	Overall *struct {
		Value *float64 `json:"value"`
	} `json:"overall"`
}

type dailySleep struct {
	CalendarDate      string       `json:"calendarDate"`
	SleepTimeSeconds  *float64     `json:"sleepTimeSeconds"`
	DeepSleepSeconds  *float64     `json:"deepSleepSeconds"`
	LightSleepSeconds *float64     `json:"lightSleepSeconds"`
	RemSleepSeconds   *float64     `json:"remSleepSeconds"`
	AwakeSleepSeconds *float64     `json:"awakeSleepSeconds"`
	SleepScores       *sleepScores `json:"sleepScores"`
}

type sleepResponse struct {
	DailySleepDTO *dailySleep `json:"dailySleepDTO"`
}

// DailyStats is the per-day summary returned by /stats.
type DailyStats struct {
	CalendarDate             string   `json:"calendarDate"`
	RestingHeartRate         *float64 `json:"restingHeartRate"`
	RestingHeartRate7DayAvg  *float64 `json:"lastSevenDaysAvgRestingHeartRate"`
	AverageStressLevel       *float64 `json:"averageStressLevel"`
	TotalSteps               *float64 `json:"totalSteps"`
	ActiveKilocalories       *float64 `json:"activeKilocalories"`
	BodyBatteryHighestValue  *float64 `json:"bodyBatteryHighestValue"`
	BodyBatteryLowestValue   *float64 `json:"bodyBatteryLowestValue"`
	BodyBatteryAtWakeTime    *float64 `json:"bodyBatteryAtWakeTime"`
	HighlyActiveSeconds      *float64 `json:"highlyActiveSeconds"`
	ActiveSeconds            *float64 `json:"activeSeconds"`
	SedentarySeconds         *float64 `json:"sedentarySeconds"`
	SleepingSeconds          *float64 `json:"sleepingSeconds"`
	ModerateIntensityMinutes *float64 `json:"moderateIntensityMinutes"`
	VigorousIntensityMinutes *float64 `json:"vigorousIntensityMinutes"`
	IntensityMinutesGoal     *float64 `json:"intensityMinutesGoal"`
}

type activityType struct {
	TypeKey string `json:"typeKey"`
}

// GarminActivity is one entry of the activity list.
type GarminActivity struct {
	ActivityID     int64        `json:"activityId"`
	ActivityName   string       `json:"activityName"`
	StartTimeLocal string       `json:"startTimeLocal"`
	ActivityType   activityType `json:"activityType"`
	Distance       float64      `json:"distance"`
	Duration       float64      `json:"duration"`
	AverageHR      float64      `json:"averageHR"`
	MaxHR          float64      `json:"maxHR"`
	Calories       float64      `json:"calories"`
	AerobicTE      float64      `json:"aerobicTrainingEffect"`
	AnaerobicTE    float64      `json:"anaerobicTrainingEffect"`
	VO2MaxValue    float64      `json:"vO2MaxValue"`
	AvgCadence     float64      `json:"averageRunningCadenceInStepsPerMinute"`
	ElevationGain  float64      `json:"elevationGain"`
	HRTimeInZone1  float64      `json:"hrTimeInZone_1"`
	HRTimeInZone2  float64      `json:"hrTimeInZone_2"`
	HRTimeInZone3  float64      `json:"hrTimeInZone_3"`
	HRTimeInZone4  float64      `json:"hrTimeInZone_4"`
	HRTimeInZone5  float64      `json:"hrTimeInZone_5"`
}

// ToActivity converts the upstream DTO.
func (g GarminActivity) ToActivity() (models.Activity, error) {
	if g.ActivityID == 0 {
		return models.Activity{}, fmt.Errorf("activity without activityId")
	}
	start, err := time.Parse(garminTimeLayout, g.StartTimeLocal)
	if err != nil {
		return models.Activity{}, fmt.Errorf("activity %d: bad startTimeLocal %q: %w", g.ActivityID, g.StartTimeLocal, err)
	}
	return models.Activity{
		ID:              strconv.FormatInt(g.ActivityID, 10),
		Name:            g.ActivityName,
		Type:            g.ActivityType.TypeKey,
		StartTime:       start,
		DurationSeconds: g.Duration,
		DistanceMeters:  g.Distance,
		AvgHR:           g.AverageHR,
		MaxHR:           g.MaxHR,
		Calories:        g.Calories,
		AerobicTE:       g.AerobicTE,
		AnaerobicTE:     g.AnaerobicTE,
		VO2Max:          g.VO2MaxValue,
		AvgCadence:      g.AvgCadence,
		ElevationGain:   g.ElevationGain,
		ZoneSeconds: [5]float64{
			g.HRTimeInZone1, g.HRTimeInZone2, g.HRTimeInZone3, g.HRTimeInZone4, g.HRTimeInZone5,
		},
	}, nil
}

func dayQuery(d time.Time) url.Values {
	return url.Values{"date": {d.Format(models.DateLayout)}}
}

func rangeQuery(r models.DateRange) url.Values {
	return url.Values{"start": {r.StartString()}, "end": {r.EndString()}}
}

func addDaily(out []models.Record, m models.MetricType, date, field string, v *float64) []models.Record {
	if v == nil {
		return out
	}
	return append(out, models.DailyRecord(m, date, field, *v))
}

func (c *Client) fetchHRV(ctx context.Context, token string, r models.DateRange) ([]models.Record, error) {
	var out []models.Record
	for _, day := range r.Days() {
		var resp hrvResponse
		found, err := c.getJSON(ctx, token, "/hrv", dayQuery(day), &resp)
		if err != nil {
			return nil, err
		}
		if !found || resp.HRVSummary == nil || resp.HRVSummary.LastNightAvg == nil {
			continue
		}

		s := resp.HRVSummary
		date := s.CalendarDate
		if date == "" {
			date = day.Format(models.DateLayout)
		}

		last := models.DailyRecord(models.MetricHRV, date, models.FieldHRVLastNight, *s.LastNightAvg)
		last.Text = s.Status
		out = append(out, last)
		out = addDaily(out, models.MetricHRV, date, models.FieldHRVWeekly, s.WeeklyAvg)
		if s.Baseline != nil {
			out = addDaily(out, models.MetricHRV, date, models.FieldHRVBaselineLow, s.Baseline.BalancedLow)
			out = addDaily(out, models.MetricHRV, date, models.FieldHRVBaselineHigh, s.Baseline.BalancedUpper)
		}
	}
	return out, nil
}

func minutes(v *float64) *float64 {
	if v == nil {
		return nil
	}
	m := *v / 60
	return &m
}

func (c *Client) fetchSleep(ctx context.Context, token string, r models.DateRange) ([]models.Record, error) {
	var resp []sleepResponse
	found, err := c.getJSON(ctx, token, "/sleep", rangeQuery(r), &resp)
	if err != nil || !found {
		return nil, err
	}

	var out []models.Record
	for _, night := range resp {
		s := night.DailySleepDTO
		if s == nil || s.SleepTimeSeconds == nil {
			continue
		}
		day, err := time.Parse(models.DateLayout, s.CalendarDate)
		if err != nil {
			return nil, errors.Fetch(errors.KindSchema, "Sleep entry has an invalid calendarDate", err)
		}
		if !r.Contains(day) {
			continue
		}
		date := s.CalendarDate

		out = addDaily(out, models.MetricSleep, date, models.FieldSleepDuration, minutes(s.SleepTimeSeconds))
		out = addDaily(out, models.MetricSleep, date, models.FieldSleepDeep, minutes(s.DeepSleepSeconds))
		out = addDaily(out, models.MetricSleep, date, models.FieldSleepLight, minutes(s.LightSleepSeconds))
		out = addDaily(out, models.MetricSleep, date, models.FieldSleepREM, minutes(s.RemSleepSeconds))
		out = addDaily(out, models.MetricSleep, date, models.FieldSleepAwake, minutes(s.AwakeSleepSeconds))
		if s.SleepScores != nil && s.SleepScores.Overall != nil {
			out = addDaily(out, models.MetricSleep, date, models.FieldSleepScore, s.SleepScores.Overall.Value)
		}
	}
	return out, nil
}

// GetStats retrieves the daily summary for a specific date.
func (c *Client) GetStats(ctx context.Context, token string, day time.Time) (*DailyStats, error) {
	var stats DailyStats
	found, err := c.getJSON(ctx, token, "/stats", dayQuery(day), &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) fetchDailySummary(ctx context.Context, token string, r models.DateRange) ([]models.Record, error) {
	var out []models.Record
	for _, day := range r.Days() {
		stats, err := c.GetStats(ctx, token, day)
		if err != nil {
			return nil, err
		}
		if stats == nil {
			continue
		}
		date := day.Format(models.DateLayout)

		out = addDaily(out, models.MetricDailySummary, date, models.FieldRestingHR, stats.RestingHeartRate)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldRestingHR7d, stats.RestingHeartRate7DayAvg)
		// -1 means no stress data for the day
		if stats.AverageStressLevel != nil && *stats.AverageStressLevel >= 0 {
			out = addDaily(out, models.MetricDailySummary, date, models.FieldAvgStress, stats.AverageStressLevel)
		}
		out = addDaily(out, models.MetricDailySummary, date, models.FieldTotalSteps, stats.TotalSteps)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldBodyBatteryHigh, stats.BodyBatteryHighestValue)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldBodyBatteryLow, stats.BodyBatteryLowestValue)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldBodyBatteryWake, stats.BodyBatteryAtWakeTime)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldActiveCalories, stats.ActiveKilocalories)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldHighlyActiveMin, minutes(stats.HighlyActiveSeconds))
		out = addDaily(out, models.MetricDailySummary, date, models.FieldActiveMin, minutes(stats.ActiveSeconds))
		out = addDaily(out, models.MetricDailySummary, date, models.FieldSedentaryMin, minutes(stats.SedentarySeconds))
		out = addDaily(out, models.MetricDailySummary, date, models.FieldSleepingMin, minutes(stats.SleepingSeconds))
		out = addDaily(out, models.MetricDailySummary, date, models.FieldModerateIntensity, stats.ModerateIntensityMinutes)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldVigorousIntensity, stats.VigorousIntensityMinutes)
		out = addDaily(out, models.MetricDailySummary, date, models.FieldIntensityMinGoal, stats.IntensityMinutesGoal)
	}
	return out, nil
}

// GetActivities lists the activities that started inside the range.
func (c *Client) GetActivities(ctx context.Context, token string, r models.DateRange) ([]models.Activity, error) {
	var resp []GarminActivity
	found, err := c.getJSON(ctx, token, "/activities", rangeQuery(r), &resp)
	if err != nil || !found {
		return nil, err
	}

	out := make([]models.Activity, 0, len(resp))
	for _, g := range resp {
		a, err := g.ToActivity()
		if err != nil {
			return nil, errors.Fetch(errors.KindSchema, "Activity list entry is malformed", err)
		}
		if !r.Contains(a.StartTime) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) fetchActivities(ctx context.Context, token string, r models.DateRange) ([]models.Record, error) {
	activities, err := c.GetActivities(ctx, token, r)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, a := range activities {
		out = append(out, a.Records()...)
	}
	return out, nil
}

// DownloadActivity fetches the original activity file, as stored by Garmin.
// It returns nil when the activity has no file, as with manual entries.
func (c *Client) DownloadActivity(ctx context.Context, token, activityID, format string) ([]byte, error) {
	path := fmt.Sprintf("/activities/%s/download", url.PathEscape(activityID))
	return c.getBytes(ctx, token, path, url.Values{"format": {format}})
}

// fetchHeartRate downloads the HR series of every activity that recorded
// heart rate. Activities whose file is missing or cannot be decoded are
// skipped; their load falls back to average HR.
func (c *Client) fetchHeartRate(ctx context.Context, token string, r models.DateRange) ([]models.Record, error) {
	activities, err := c.GetActivities(ctx, token, r)
	if err != nil {
		return nil, err
	}

	var out []models.Record
	for i, a := range activities {
		if err := ctx.Err(); err != nil {
			return nil, errors.Fetch(errors.KindNetwork, "Heart rate download cancelled", err)
		}
		if a.AvgHR <= 0 {
			continue
		}
		c.log.Debug().Str("activity", a.ID).Msgf("[%d/%d] Downloading activity file", i+1, len(activities))

		data, err := c.DownloadActivity(ctx, token, a.ID, "fit")
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			c.log.Debug().Str("activity", a.ID).Msg("No activity file available")
			continue
		}
		metrics, err := c.parse(data)
		if err != nil {
			c.log.Warn().Err(err).Str("activity", a.ID).Msg("Skipping undecodable activity file")
			continue
		}
		out = append(out, metrics.HeartRateRecords(a.ID)...)
	}
	return out, nil
}
