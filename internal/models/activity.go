package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field names for activity rows.
const (
	FieldStart         = "start"
	FieldName          = "name"
	FieldDuration      = "duration_s"
	FieldDistance      = "distance_m"
	FieldAvgHR         = "avg_hr"
	FieldMaxHR         = "max_hr"
	FieldCalories      = "calories"
	FieldAerobicTE     = "aerobic_te"
	FieldAnaerobicTE   = "anaerobic_te"
	FieldVO2Max        = "vo2max"
	FieldAvgCadence    = "avg_cadence"
	FieldElevationGain = "elevation_gain"
	FieldHR            = "hr"
)

// ZoneField returns the field name holding seconds spent in HR zone n (1-5).
func ZoneField(n int) string { return fmt.Sprintf("zone%d_s", n) }

// Activity is the wide view of one recorded workout.
type Activity struct {
	ID              string
	Name            string
	Type            string
	StartTime       time.Time
	DurationSeconds float64
	DistanceMeters  float64
	AvgHR           float64
	MaxHR           float64
	Calories        float64
	AerobicTE       float64
	AnaerobicTE     float64
	VO2Max          float64
	AvgCadence      float64
	ElevationGain   float64
	ZoneSeconds     [5]float64
}

// Date is the calendar day of the activity start.
func (a Activity) Date() string { return a.StartTime.Format(DateLayout) }

// IsRun reports whether the activity type is any running variant.
func (a Activity) IsRun() bool { return strings.Contains(strings.ToLower(a.Type), "running") }

// DistanceKm converts the distance to kilometres.
func (a Activity) DistanceKm() float64 { return a.DistanceMeters / 1000 }

// DurationMinutes converts the duration to minutes.
func (a Activity) DurationMinutes() float64 { return a.DurationSeconds / 60 }

// PaceMinPerKm is minutes per kilometre, or zero when distance is unknown.
func (a Activity) PaceMinPerKm() float64 {
	if a.DistanceMeters <= 0 {
		return 0
	}
	return a.DurationMinutes() / a.DistanceKm()
}

// Records flattens the activity into long-format rows. Zero-valued optional
// measurements are omitted.
func (a Activity) Records() []Record {
	date := a.Date()
	base := Record{Date: date, Metric: string(MetricActivities), Entity: a.ID}

	start := base
	start.Field = FieldStart
	start.Time = a.StartTime.UnixMilli()
	start.Text = a.Type
	out := []Record{start}

	if a.Name != "" {
		r := base
		r.Field = FieldName
		r.Text = a.Name
		out = append(out, r)
	}

	add := func(field string, v float64) {
		if v == 0 {
			return
		}
		r := base
		r.Field = field
		r.Value = v
		out = append(out, r)
	}
	add(FieldDuration, a.DurationSeconds)
	add(FieldDistance, a.DistanceMeters)
	add(FieldAvgHR, a.AvgHR)
	add(FieldMaxHR, a.MaxHR)
	add(FieldCalories, a.Calories)
	add(FieldAerobicTE, a.AerobicTE)
	add(FieldAnaerobicTE, a.AnaerobicTE)
	add(FieldVO2Max, a.VO2Max)
	add(FieldAvgCadence, a.AvgCadence)
	add(FieldElevationGain, a.ElevationGain)
	for i, s := range a.ZoneSeconds {
		add(ZoneField(i+1), s)
	}
	return out
}

// ActivitiesFromRecords pivots activity rows back into activities ordered by
// start time. Rows of other metrics are ignored.
func ActivitiesFromRecords(records []Record) []Activity {
	byID := make(map[string]*Activity)
	var order []string

	for _, r := range records {
		if r.Metric != string(MetricActivities) || r.Entity == "" {
			continue
		}
		a, ok := byID[r.Entity]
		if !ok {
			a = &Activity{ID: r.Entity}
			byID[r.Entity] = a
			order = append(order, r.Entity)
		}
		switch r.Field {
		case FieldStart:
			a.StartTime = time.UnixMilli(r.Time).UTC()
			a.Type = r.Text
		case FieldName:
			a.Name = r.Text
		case FieldDuration:
			a.DurationSeconds = r.Value
		case FieldDistance:
			a.DistanceMeters = r.Value
		case FieldAvgHR:
			a.AvgHR = r.Value
		case FieldMaxHR:
			a.MaxHR = r.Value
		case FieldCalories:
			a.Calories = r.Value
		case FieldAerobicTE:
			a.AerobicTE = r.Value
		case FieldAnaerobicTE:
			a.AnaerobicTE = r.Value
		case FieldVO2Max:
			a.VO2Max = r.Value
		case FieldAvgCadence:
			a.AvgCadence = r.Value
		case FieldElevationGain:
			a.ElevationGain = r.Value
		default:
			for i := 1; i <= 5; i++ {
				if r.Field == ZoneField(i) {
					a.ZoneSeconds[i-1] = r.Value
				}
			}
		}
	}

	out := make([]Activity, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
