package models

import "time"

// HRSample is a single heart-rate reading.
type HRSample struct {
	Time time.Time
	BPM  float64
}

// ActivityMetrics contains the metrics extracted from a downloaded activity file.
type ActivityMetrics struct {
	ActivityType string
	StartTime    time.Time
	Duration     time.Duration
	Distance     float64 // in meters
	MaxHeartRate int
	AvgHeartRate int
	Calories     int
	HeartRate    []HRSample
}

// HeartRateRecords converts the HR samples into heart_rate rows for the given
// activity ID.
func (m *ActivityMetrics) HeartRateRecords(activityID string) []Record {
	out := make([]Record, 0, len(m.HeartRate))
	for _, s := range m.HeartRate {
		out = append(out, Record{
			Date:   s.Time.UTC().Format(DateLayout),
			Time:   s.Time.UnixMilli(),
			Metric: string(MetricHeartRate),
			Entity: activityID,
			Field:  FieldHR,
			Value:  s.BPM,
		})
	}
	return out
}

// HRSeriesByActivity groups heart_rate rows by activity ID, each in time order.
func HRSeriesByActivity(records []Record) map[string][]HRSample {
	out := make(map[string][]HRSample)
	for _, r := range records {
		if r.Metric != string(MetricHeartRate) || r.Field != FieldHR {
			continue
		}
		out[r.Entity] = append(out[r.Entity], HRSample{Time: time.UnixMilli(r.Time).UTC(), BPM: r.Value})
	}
	return out
}
