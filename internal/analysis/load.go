package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sstent/garmindash/internal/models"
)

// HRProfile holds the heart-rate anchors TRIMP is scaled by.
type HRProfile struct {
	MaxHR     float64
	RestingHR float64
}

// Valid reports whether the profile can scale heart rate reserve.
func (p HRProfile) Valid() bool {
	return p.RestingHR > 0 && p.MaxHR > p.RestingHR
}

// Reserve is the fraction of heart rate reserve bpm represents, clamped to [0, 1].
func (p HRProfile) Reserve(bpm float64) float64 {
	r := (bpm - p.RestingHR) / (p.MaxHR - p.RestingHR)
	return math.Max(0, math.Min(1, r))
}

// maxSampleGap caps the time a single HR sample can account for, so pauses in
// recording do not inflate the load.
const maxSampleGap = 60 * time.Second

func trimpWeight(r float64) float64 {
	return r * 0.64 * math.Exp(1.92*r)
}

// TrainingLoad computes Banister's exponential TRIMP for an HR series. Each
// sample is weighted by the time until the next one, capped at one minute.
// It returns zero for fewer than two samples or an invalid profile.
func TrainingLoad(samples []models.HRSample, p HRProfile) float64 {
	if len(samples) < 2 || !p.Valid() {
		return 0
	}
	sorted := make([]models.HRSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var load float64
	for i := 0; i < len(sorted)-1; i++ {
		dt := sorted[i+1].Time.Sub(sorted[i].Time)
		if dt <= 0 {
			continue
		}
		if dt > maxSampleGap {
			dt = maxSampleGap
		}
		load += dt.Minutes() * trimpWeight(p.Reserve(sorted[i].BPM))
	}
	return load
}

// LoadMethod selects how an activity is turned into a single load number.
type LoadMethod string

const (
	// LoadDurationHR is minutes times average HR.
	LoadDurationHR LoadMethod = "duration_hr"
	// LoadTRIMPEdwards weights minutes in each zone by the zone number.
	LoadTRIMPEdwards LoadMethod = "trimp_edwards"
	// LoadTRIMPBanister uses the HR series when available, falling back to
	// average HR over the whole duration.
	LoadTRIMPBanister LoadMethod = "trimp_banister"
	// LoadAerobicTE sums Garmin's aerobic training effect.
	LoadAerobicTE LoadMethod = "aerobic_te_sum"
)

// LoadMethods lists every method in the order offered to users.
var LoadMethods = []LoadMethod{LoadDurationHR, LoadTRIMPEdwards, LoadTRIMPBanister, LoadAerobicTE}

// ParseLoadMethod accepts a method name; empty selects LoadDurationHR.
func ParseLoadMethod(s string) (LoadMethod, error) {
	if s == "" {
		return LoadDurationHR, nil
	}
	for _, m := range LoadMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown load method %q", s)
}

// ActivityLoad scores one activity. hr is the activity's HR series and may be
// nil.
func ActivityLoad(a models.Activity, method LoadMethod, hr []models.HRSample, p HRProfile) float64 {
	switch method {
	case LoadAerobicTE:
		return a.AerobicTE
	case LoadTRIMPEdwards:
		var load float64
		for i, s := range a.ZoneSeconds {
			load += s / 60 * float64(i+1)
		}
		return load
	case LoadTRIMPBanister:
		if load := TrainingLoad(hr, p); load > 0 {
			return load
		}
		if !p.Valid() {
			return 0
		}
		return a.DurationMinutes() * trimpWeight(p.Reserve(a.AvgHR))
	default:
		return a.DurationMinutes() * a.AvgHR
	}
}

// DailyLoad sums activity load per calendar day, oldest first. Activities
// without duration or average HR are skipped.
func DailyLoad(acts []models.Activity, method LoadMethod, hr map[string][]models.HRSample, p HRProfile) []Point {
	byDay := map[string]float64{}
	for _, a := range acts {
		if a.DurationSeconds <= 0 || a.AvgHR <= 0 {
			continue
		}
		byDay[a.Date()] += ActivityLoad(a, method, hr[a.ID], p)
	}

	out := make([]Point, 0, len(byDay))
	for d, v := range byDay {
		date, err := time.Parse(models.DateLayout, d)
		if err != nil {
			continue
		}
		out = append(out, Point{Date: date, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ACWR window sizes in days.
const (
	AcuteWindow      = 7
	ChronicWindow    = 28
	ChronicMinPeriod = 7
)

// Bounds of the acute:chronic ratio considered safe.
const (
	ACWRLow  = 0.8
	ACWRHigh = 1.3
)

// ACWRPoint is one day of the acute:chronic workload ratio.
type ACWRPoint struct {
	Date    time.Time
	Load    float64
	Acute   float64
	Chronic float64
	// Ratio is zero when the chronic load is undefined or zero.
	Ratio float64
}

// Zone classifies the ratio as "low", "optimal" or "high".
func (p ACWRPoint) Zone() string {
	switch {
	case p.Ratio > ACWRHigh:
		return "high"
	case p.Ratio >= ACWRLow:
		return "optimal"
	default:
		return "low"
	}
}

// ACWR computes rolling acute (7-day) and chronic (28-day) load means over
// every day of r. Days without load count as zero. The chronic mean needs at
// least ChronicMinPeriod days of history.
func ACWR(daily []Point, r models.DateRange) []ACWRPoint {
	days := r.Days()
	if len(days) == 0 {
		return nil
	}
	loads := make([]float64, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d.Format(models.DateLayout)] = i
	}
	for _, p := range daily {
		if i, ok := index[p.Date.Format(models.DateLayout)]; ok {
			loads[i] += p.Value
		}
	}

	out := make([]ACWRPoint, len(days))
	for i, d := range days {
		pt := ACWRPoint{Date: d, Load: loads[i]}
		pt.Acute = stat.Mean(loads[max(0, i-AcuteWindow+1):i+1], nil)
		if i+1 >= ChronicMinPeriod {
			pt.Chronic = stat.Mean(loads[max(0, i-ChronicWindow+1):i+1], nil)
			if pt.Chronic > 0 {
				pt.Ratio = pt.Acute / pt.Chronic
			}
		}
		out[i] = pt
	}
	return out
}
