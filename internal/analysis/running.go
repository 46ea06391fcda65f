package analysis

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sstent/garmindash/internal/models"
)

// Runs keeps running activities.
func Runs(acts []models.Activity) []models.Activity {
	var out []models.Activity
	for _, a := range acts {
		if a.IsRun() {
			out = append(out, a)
		}
	}
	return out
}

// Zone2Runs selects easy runs. With a known max HR a run qualifies when its
// average HR is within 60-70% of max; otherwise when more than half of its
// duration was spent in zone 2.
func Zone2Runs(runs []models.Activity, maxHR float64) []models.Activity {
	var out []models.Activity
	for _, r := range runs {
		if maxHR > 0 {
			if r.AvgHR >= 0.60*maxHR && r.AvgHR <= 0.70*maxHR {
				out = append(out, r)
			}
			continue
		}
		z2 := r.ZoneSeconds[1]
		if z2 > 0 && r.DurationSeconds > 0 && z2/r.DurationSeconds > 0.50 {
			out = append(out, r)
		}
	}
	return out
}

// EfficiencyPoint is the aerobic efficiency of a single run.
type EfficiencyPoint struct {
	Date         time.Time
	ActivityID   string
	SpeedMPerMin float64
	AvgHR        float64
	PaceMinPerKm float64
	DistanceKm   float64
	// Efficiency is metres per minute per heartbeat per minute.
	Efficiency float64
}

// AerobicEfficiencySeries computes speed over average HR for every activity
// that has distance, duration and HR.
func AerobicEfficiencySeries(acts []models.Activity) []EfficiencyPoint {
	var out []EfficiencyPoint
	for _, a := range acts {
		if a.DistanceMeters <= 0 || a.DurationSeconds <= 0 || a.AvgHR <= 0 {
			continue
		}
		speed := a.DistanceMeters / a.DurationMinutes()
		out = append(out, EfficiencyPoint{
			Date:         a.StartTime,
			ActivityID:   a.ID,
			SpeedMPerMin: speed,
			AvgHR:        a.AvgHR,
			PaceMinPerKm: a.PaceMinPerKm(),
			DistanceKm:   a.DistanceKm(),
			Efficiency:   speed / a.AvgHR,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// AerobicEfficiency is the mean efficiency over the activities, zero when
// none qualify.
func AerobicEfficiency(acts []models.Activity) float64 {
	series := AerobicEfficiencySeries(acts)
	if len(series) == 0 {
		return 0
	}
	vals := make([]float64, len(series))
	for i, p := range series {
		vals[i] = p.Efficiency
	}
	return stat.Mean(vals, nil)
}

// WeekStart returns the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	d := models.Day(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// ZoneWeek is the time spent per HR zone in one week, in minutes.
type ZoneWeek struct {
	WeekStart time.Time
	Minutes   [5]float64
}

// ZoneDistribution sums time in each HR zone per Monday-started week.
func ZoneDistribution(acts []models.Activity) []ZoneWeek {
	byWeek := map[time.Time]*ZoneWeek{}
	for _, a := range acts {
		w := WeekStart(a.StartTime)
		zw, ok := byWeek[w]
		if !ok {
			zw = &ZoneWeek{WeekStart: w}
			byWeek[w] = zw
		}
		for i, s := range a.ZoneSeconds {
			zw.Minutes[i] += s / 60
		}
	}

	out := make([]ZoneWeek, 0, len(byWeek))
	for _, zw := range byWeek {
		out = append(out, *zw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

// ZoneBound is an inclusive BPM range.
type ZoneBound struct {
	Name string
	Min  float64
	Max  float64
}

// DefaultZones are the BPM bounds used when the user has not set their own.
var DefaultZones = []ZoneBound{
	{"Zone 1", 0, 120},
	{"Zone 2", 121, 145},
	{"Zone 3", 146, 160},
	{"Zone 4", 161, 175},
	{"Zone 5", 176, 220},
}

// ZonePace is the mean pace of one week's runs whose average HR fell in a zone.
type ZonePace struct {
	WeekStart    time.Time
	Zone         string
	PaceMinPerKm float64
	Runs         int
}

// PacePerZoneTrend classifies runs of at least minDuration by average HR and
// averages their pace per week and zone.
func PacePerZoneTrend(runs []models.Activity, zones []ZoneBound, minDuration time.Duration) []ZonePace {
	type key struct {
		week time.Time
		zone string
	}
	paces := map[key][]float64{}
	var order []key

	for _, r := range runs {
		if r.DurationSeconds < minDuration.Seconds() || r.PaceMinPerKm() <= 0 || r.AvgHR <= 0 {
			continue
		}
		zone := ""
		for _, z := range zones {
			if r.AvgHR >= z.Min && r.AvgHR <= z.Max {
				zone = z.Name
				break
			}
		}
		if zone == "" {
			continue
		}
		k := key{WeekStart(r.StartTime), zone}
		if _, ok := paces[k]; !ok {
			order = append(order, k)
		}
		paces[k] = append(paces[k], r.PaceMinPerKm())
	}

	out := make([]ZonePace, 0, len(order))
	for _, k := range order {
		out = append(out, ZonePace{
			WeekStart:    k.week,
			Zone:         k.zone,
			PaceMinPerKm: stat.Mean(paces[k], nil),
			Runs:         len(paces[k]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].WeekStart.Before(out[j].WeekStart)
		}
		return out[i].Zone < out[j].Zone
	})
	return out
}

// RunningSummary holds the scorecard totals for a set of runs.
type RunningSummary struct {
	Runs         int
	DistanceKm   float64
	DurationMin  float64
	PaceMinPerKm float64
	AvgHR        float64
}

// SummarizeRuns totals distance and time; pace is total time over total
// distance and HR is the mean of runs that recorded one.
func SummarizeRuns(runs []models.Activity) RunningSummary {
	s := RunningSummary{Runs: len(runs)}
	var hrs []float64
	for _, r := range runs {
		s.DistanceKm += r.DistanceKm()
		s.DurationMin += r.DurationMinutes()
		if r.AvgHR > 0 {
			hrs = append(hrs, r.AvgHR)
		}
	}
	if s.DistanceKm > 0 {
		s.PaceMinPerKm = s.DurationMin / s.DistanceKm
	}
	if len(hrs) > 0 {
		s.AvgHR = stat.Mean(hrs, nil)
	}
	return s
}

// LongestRunPerWeek returns the longest run distance in km for each
// Monday-started week that has a run, oldest first.
func LongestRunPerWeek(runs []models.Activity) []Point {
	byWeek := map[time.Time]float64{}
	for _, r := range runs {
		km := r.DistanceKm()
		if km <= 0 {
			continue
		}
		w := WeekStart(r.StartTime)
		if km > byWeek[w] {
			byWeek[w] = km
		}
	}

	out := make([]Point, 0, len(byWeek))
	for w, km := range byWeek {
		out = append(out, Point{Date: w, Value: km})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// PaceHRPoint places one run by pace and average HR.
type PaceHRPoint struct {
	Date         time.Time
	Name         string
	PaceMinPerKm float64
	AvgHR        float64
	DistanceKm   float64
	AerobicTE    float64
}

// PaceVsHR lists every run with both a pace and an average HR, oldest first.
func PaceVsHR(runs []models.Activity) []PaceHRPoint {
	var out []PaceHRPoint
	for _, r := range runs {
		pace := r.PaceMinPerKm()
		if pace <= 0 || r.AvgHR <= 0 {
			continue
		}
		out = append(out, PaceHRPoint{
			Date:         r.StartTime,
			Name:         r.Name,
			PaceMinPerKm: pace,
			AvgHR:        r.AvgHR,
			DistanceKm:   r.DistanceKm(),
			AerobicTE:    r.AerobicTE,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
