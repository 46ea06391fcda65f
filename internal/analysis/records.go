package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/sstent/garmindash/internal/models"
)

// DistanceBand is an inclusive range of run distances in kilometres.
type DistanceBand struct {
	Name  string
	MinKm float64
	MaxKm float64
}

func (b DistanceBand) contains(km float64) bool { return km >= b.MinKm && km <= b.MaxKm }

// RaceEvents accept a small tolerance around each standard distance so GPS
// drift does not disqualify a race.
var RaceEvents = []DistanceBand{
	{"5K", 4.90, 5.15},
	{"10K", 9.80, 10.25},
	{"15K", 14.75, 15.30},
	{"Half Marathon", 20.75, 21.50},
}

// PaceCategories bucket every run for fastest-pace and cadence records.
var PaceCategories = []DistanceBand{
	{"< 5 km", 0.5, 4.99},
	{"5-10 km", 5.0, 9.99},
	{"10-15 km", 10.0, 14.99},
	{"15 km - HM", 15.0, 21.3},
	{"HM+", 21.31, 1000},
}

// PersonalRecord is the best run for one category.
type PersonalRecord struct {
	Category string
	Activity models.Activity
	// Value is the record value in the category's own unit.
	Value float64
	Found bool
}

// RecordBook is every personal record derived from a set of runs.
type RecordBook struct {
	// FastestEvents holds the shortest duration per race distance.
	FastestEvents []PersonalRecord
	// FastestPace holds the lowest min/km per distance category.
	FastestPace []PersonalRecord
	// BestCadence holds the highest average cadence per distance category.
	BestCadence []PersonalRecord

	LongestDistance PersonalRecord
	LongestDuration PersonalRecord
	FastestLongRun  PersonalRecord
	HighestVO2Max   PersonalRecord
}

// LongRunKm is the distance above which a run counts for FastestLongRun.
const LongRunKm = 10.0

// PersonalRecords scans runs for personal bests. Earlier runs win ties.
func PersonalRecords(runs []models.Activity) RecordBook {
	pr := RecordBook{
		FastestEvents:   newRecords(RaceEvents),
		FastestPace:     newRecords(PaceCategories),
		BestCadence:     newRecords(PaceCategories),
		LongestDistance: PersonalRecord{Category: "Longest run (distance)"},
		LongestDuration: PersonalRecord{Category: "Longest run (duration)"},
		FastestLongRun:  PersonalRecord{Category: fmt.Sprintf("Fastest pace over %.0f km", LongRunKm)},
		HighestVO2Max:   PersonalRecord{Category: "Highest VO2max"},
	}

	for _, r := range sortedByStart(runs) {
		km := r.DistanceKm()
		pace := r.PaceMinPerKm()

		for i, b := range RaceEvents {
			if r.DurationSeconds > 0 && b.contains(km) {
				pr.FastestEvents[i].offer(r, r.DurationSeconds, lower)
			}
		}
		for i, b := range PaceCategories {
			if !b.contains(km) {
				continue
			}
			if pace > 0 {
				pr.FastestPace[i].offer(r, pace, lower)
			}
			if r.AvgCadence > 0 {
				pr.BestCadence[i].offer(r, r.AvgCadence, higher)
			}
		}
		if km > 0 {
			pr.LongestDistance.offer(r, km, higher)
		}
		if r.DurationSeconds > 0 {
			pr.LongestDuration.offer(r, r.DurationSeconds, higher)
		}
		if km > LongRunKm && pace > 0 {
			pr.FastestLongRun.offer(r, pace, lower)
		}
		if r.VO2Max > 0 {
			pr.HighestVO2Max.offer(r, r.VO2Max, higher)
		}
	}
	return pr
}

func newRecords(bands []DistanceBand) []PersonalRecord {
	out := make([]PersonalRecord, len(bands))
	for i, b := range bands {
		out[i].Category = b.Name
	}
	return out
}

func lower(candidate, best float64) bool  { return candidate < best }
func higher(candidate, best float64) bool { return candidate > best }

func (p *PersonalRecord) offer(a models.Activity, v float64, better func(candidate, best float64) bool) {
	if !p.Found || better(v, p.Value) {
		p.Activity = a
		p.Value = v
		p.Found = true
	}
}

func sortedByStart(runs []models.Activity) []models.Activity {
	out := make([]models.Activity, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// FormatDuration renders seconds as MM:SS, or HH:MM:SS when showHours is set.
// Without hours the minutes are not wrapped at 60.
func FormatDuration(seconds float64, showHours bool) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Round(seconds))
	if showHours {
		return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatPace renders minutes per km as M:SS.
func FormatPace(minPerKm float64) string {
	if minPerKm <= 0 || math.IsInf(minPerKm, 0) || math.IsNaN(minPerKm) {
		return "-"
	}
	total := int(math.Round(minPerKm * 60))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
