package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for record dates and cache keys.
const DateLayout = "2006-01-02"

// MetricType names a category of data fetched from Garmin Connect.
type MetricType string

const (
	MetricHRV          MetricType = "hrv"
	MetricSleep        MetricType = "sleep"
	MetricDailySummary MetricType = "daily_summary"
	MetricActivities   MetricType = "activities"
	MetricHeartRate    MetricType = "heart_rate"
)

// AllMetrics lists every supported metric type in display order.
var AllMetrics = []MetricType{
	MetricHRV,
	MetricSleep,
	MetricDailySummary,
	MetricActivities,
	MetricHeartRate,
}

// ParseMetricType validates a metric name.
func ParseMetricType(s string) (MetricType, error) {
	m := MetricType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllMetrics {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric type %q", s)
}

func (m MetricType) String() string { return string(m) }

// Record is one row of the long columnar layout shared by every metric type.
// Daily values leave Time at zero; activity-scoped rows carry the activity ID
// in Entity.
type Record struct {
	Date   string  `parquet:"date,dict"`
	Time   int64   `parquet:"time"`
	Metric string  `parquet:"metric,dict"`
	Entity string  `parquet:"entity,dict"`
	Field  string  `parquet:"field,dict"`
	Value  float64 `parquet:"value"`
	Text   string  `parquet:"text"`
}

// DailyRecord builds a record for a day-level value.
func DailyRecord(m MetricType, date, field string, value float64) Record {
	return Record{Date: date, Metric: string(m), Field: field, Value: value}
}

// Timestamp returns the sample time, or midnight UTC of Date for daily values.
func (r Record) Timestamp() time.Time {
	if r.Time != 0 {
		return time.UnixMilli(r.Time).UTC()
	}
	t, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to calendar days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return DateRange{Start: s, End: e}, nil
}

// LastDays returns the range of n days ending on today.
func LastDays(today time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	end := Day(today)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Validate checks Start <= End and that End is not after today.
func (r DateRange) Validate(today time.Time) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range is incomplete")
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("start date %s is after end date %s", r.StartString(), r.EndString())
	}
	if r.End.After(Day(today)) {
		return fmt.Errorf("end date %s is in the future", r.EndString())
	}
	return nil
}

func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndString() string   { return r.End.Format(DateLayout) }

func (r DateRange) String() string {
	return r.StartString() + "_to_" + r.EndString()
}

// Days enumerates every calendar day in the range, inclusive.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := Day(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(Day(r.End).Sub(Day(r.Start)).Hours()/24) + 1
}

// Contains reports whether the day of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
