// Package analysis derives dashboard metrics from cached records. Every
// function is pure: the same input always yields the same output.
package analysis

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sstent/garmindash/internal/models"
)

// Point is one value of a daily series.
type Point struct {
	Date  time.Time
	Value float64
}

// DailySeries extracts one field of a metric as a date-ordered series.
func DailySeries(records []models.Record, metric models.MetricType, field string) []Point {
	var out []Point
	for _, r := range records {
		if r.Metric != string(metric) || r.Field != field {
			continue
		}
		d, err := time.Parse(models.DateLayout, r.Date)
		if err != nil {
			continue
		}
		out = append(out, Point{Date: d, Value: r.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Values returns the values of a series.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Mean of a series, zero when empty.
func Mean(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	return stat.Mean(Values(points), nil)
}

// Sum of a series.
func Sum(points []Point) float64 {
	return floats.Sum(Values(points))
}

// HRVDay is one night of HRV data.
type HRVDay struct {
	Date         time.Time
	LastNight    float64
	WeeklyAvg    float64
	BaselineLow  float64
	BaselineHigh float64
	Status       string
}

// HRVTrend pivots hrv records into one entry per night, oldest first.
func HRVTrend(records []models.Record) []HRVDay {
	byDate := map[string]*HRVDay{}
	for _, r := range records {
		if r.Metric != string(models.MetricHRV) {
			continue
		}
		d, ok := byDate[r.Date]
		if !ok {
			date, err := time.Parse(models.DateLayout, r.Date)
			if err != nil {
				continue
			}
			d = &HRVDay{Date: date}
			byDate[r.Date] = d
		}
		switch r.Field {
		case models.FieldHRVLastNight:
			d.LastNight = r.Value
			d.Status = r.Text
		case models.FieldHRVWeekly:
			d.WeeklyAvg = r.Value
		case models.FieldHRVBaselineLow:
			d.BaselineLow = r.Value
		case models.FieldHRVBaselineHigh:
			d.BaselineHigh = r.Value
		}
	}

	out := make([]HRVDay, 0, len(byDate))
	for _, d := range byDate {
		if d.LastNight > 0 {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SleepNight is one night of sleep, durations in minutes.
type SleepNight struct {
	Date        time.Time
	DurationMin float64
	DeepMin     float64
	LightMin    float64
	REMMin      float64
	AwakeMin    float64
	Score       float64
}

// Hours is the total sleep duration in hours.
func (n SleepNight) Hours() float64 { return n.DurationMin / 60 }

// SleepNights pivots sleep records into one entry per night, oldest first.
func SleepNights(records []models.Record) []SleepNight {
	byDate := map[string]*SleepNight{}
	for _, r := range records {
		if r.Metric != string(models.MetricSleep) {
			continue
		}
		n, ok := byDate[r.Date]
		if !ok {
			date, err := time.Parse(models.DateLayout, r.Date)
			if err != nil {
				continue
			}
			n = &SleepNight{Date: date}
			byDate[r.Date] = n
		}
		switch r.Field {
		case models.FieldSleepDuration:
			n.DurationMin = r.Value
		case models.FieldSleepDeep:
			n.DeepMin = r.Value
		case models.FieldSleepLight:
			n.LightMin = r.Value
		case models.FieldSleepREM:
			n.REMMin = r.Value
		case models.FieldSleepAwake:
			n.AwakeMin = r.Value
		case models.FieldSleepScore:
			n.Score = r.Value
		}
	}

	out := make([]SleepNight, 0, len(byDate))
	for _, n := range byDate {
		if n.DurationMin > 0 {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DaySummary is one day of the daily_summary metric. Missing values are zero.
// Activity-level and intensity values are minutes.
type DaySummary struct {
	Date            time.Time
	RestingHR       float64
	RestingHR7d     float64
	AvgStress       float64
	HasStress       bool
	TotalSteps      float64
	ActiveCalories  float64
	BodyBatteryHigh float64
	BodyBatteryLow  float64
	BodyBatteryWake float64

	HighlyActiveMin float64
	ActiveMin       float64
	SedentaryMin    float64
	SleepingMin     float64
	HasLevels       bool

	ModerateMin   float64
	VigorousMin   float64
	IntensityGoal float64
	HasIntensity  bool
}

// DailySummaries pivots daily_summary records, oldest first.
func DailySummaries(records []models.Record) []DaySummary {
	byDate := map[string]*DaySummary{}
	for _, r := range records {
		if r.Metric != string(models.MetricDailySummary) {
			continue
		}
		s, ok := byDate[r.Date]
		if !ok {
			date, err := time.Parse(models.DateLayout, r.Date)
			if err != nil {
				continue
			}
			s = &DaySummary{Date: date}
			byDate[r.Date] = s
		}
		switch r.Field {
		case models.FieldRestingHR:
			s.RestingHR = r.Value
		case models.FieldRestingHR7d:
			s.RestingHR7d = r.Value
		case models.FieldAvgStress:
			s.AvgStress = r.Value
			s.HasStress = true
		case models.FieldTotalSteps:
			s.TotalSteps = r.Value
		case models.FieldBodyBatteryHigh:
			s.BodyBatteryHigh = r.Value
		case models.FieldBodyBatteryLow:
			s.BodyBatteryLow = r.Value
		case models.FieldBodyBatteryWake:
			s.BodyBatteryWake = r.Value
		case models.FieldActiveCalories:
			s.ActiveCalories = r.Value
		case models.FieldHighlyActiveMin:
			s.HighlyActiveMin, s.HasLevels = r.Value, true
		case models.FieldActiveMin:
			s.ActiveMin, s.HasLevels = r.Value, true
		case models.FieldSedentaryMin:
			s.SedentaryMin, s.HasLevels = r.Value, true
		case models.FieldSleepingMin:
			s.SleepingMin, s.HasLevels = r.Value, true
		case models.FieldModerateIntensity:
			s.ModerateMin, s.HasIntensity = r.Value, true
		case models.FieldVigorousIntensity:
			s.VigorousMin, s.HasIntensity = r.Value, true
		case models.FieldIntensityMinGoal:
			s.IntensityGoal = r.Value
		}
	}

	out := make([]DaySummary, 0, len(byDate))
	for _, s := range byDate {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// StressBuckets counts days per Garmin stress band: rest (0-25), low (26-50),
// medium (51-75) and high (76-100).
func StressBuckets(days []DaySummary) [4]int {
	var out [4]int
	for _, d := range days {
		if !d.HasStress {
			continue
		}
		switch {
		case d.AvgStress <= 25:
			out[0]++
		case d.AvgStress <= 50:
			out[1]++
		case d.AvgStress <= 75:
			out[2]++
		default:
			out[3]++
		}
	}
	return out
}
