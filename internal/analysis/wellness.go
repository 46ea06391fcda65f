package analysis

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// IntensityWeek is one Monday-started week of intensity minutes.
type IntensityWeek struct {
	WeekStart time.Time
	// Weighted counts vigorous minutes twice, as Garmin does.
	Weighted float64
	// Goal is the weekly goal reported on the first day of the week that has one.
	Goal float64
}

// Met reports whether the weekly goal was reached.
func (w IntensityWeek) Met() bool { return w.Goal > 0 && w.Weighted >= w.Goal }

// WeeklyIntensity sums weighted intensity minutes per week, oldest first.
// Weeks without any intensity data are left out.
func WeeklyIntensity(days []DaySummary) []IntensityWeek {
	sorted := sortedDays(days)
	byWeek := map[time.Time]*IntensityWeek{}
	for _, d := range sorted {
		if !d.HasIntensity && d.IntensityGoal == 0 {
			continue
		}
		ws := WeekStart(d.Date)
		w, ok := byWeek[ws]
		if !ok {
			w = &IntensityWeek{WeekStart: ws}
			byWeek[ws] = w
		}
		w.Weighted += d.ModerateMin + 2*d.VigorousMin
		if w.Goal == 0 {
			w.Goal = d.IntensityGoal
		}
	}

	out := make([]IntensityWeek, 0, len(byWeek))
	for _, w := range byWeek {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

// ActivityLevelWeek holds the average minutes per day spent at each activity
// level over one week.
type ActivityLevelWeek struct {
	WeekStart    time.Time
	HighlyActive float64
	Active       float64
	Sedentary    float64
	Sleeping     float64
	Days         int
}

// WeeklyActivityLevels averages the daily activity-level minutes per week
// over the days that report them, oldest first.
func WeeklyActivityLevels(days []DaySummary) []ActivityLevelWeek {
	type acc struct{ high, active, sedentary, sleeping []float64 }
	byWeek := map[time.Time]*acc{}
	for _, d := range days {
		if !d.HasLevels {
			continue
		}
		ws := WeekStart(d.Date)
		a, ok := byWeek[ws]
		if !ok {
			a = &acc{}
			byWeek[ws] = a
		}
		a.high = append(a.high, d.HighlyActiveMin)
		a.active = append(a.active, d.ActiveMin)
		a.sedentary = append(a.sedentary, d.SedentaryMin)
		a.sleeping = append(a.sleeping, d.SleepingMin)
	}

	out := make([]ActivityLevelWeek, 0, len(byWeek))
	for ws, a := range byWeek {
		out = append(out, ActivityLevelWeek{
			WeekStart:    ws,
			HighlyActive: stat.Mean(a.high, nil),
			Active:       stat.Mean(a.active, nil),
			Sedentary:    stat.Mean(a.sedentary, nil),
			Sleeping:     stat.Mean(a.sleeping, nil),
			Days:         len(a.high),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

// BodyBatteryDay is the morning and daily extremes of body battery.
type BodyBatteryDay struct {
	Date time.Time
	Wake float64
	High float64
	Low  float64
	// SleepHours is the sleep of the night that ended this morning, zero when
	// unknown.
	SleepHours float64
}

// BodyBattery lists the days with any body battery value, oldest first,
// paired with the preceding night's sleep.
func BodyBattery(days []DaySummary, nights []SleepNight) []BodyBatteryDay {
	sleep := make(map[time.Time]float64, len(nights))
	for _, n := range nights {
		sleep[n.Date] = n.Hours()
	}

	var out []BodyBatteryDay
	for _, d := range sortedDays(days) {
		if d.BodyBatteryWake == 0 && d.BodyBatteryHigh == 0 && d.BodyBatteryLow == 0 {
			continue
		}
		out = append(out, BodyBatteryDay{
			Date:       d.Date,
			Wake:       d.BodyBatteryWake,
			High:       d.BodyBatteryHigh,
			Low:        d.BodyBatteryLow,
			SleepHours: sleep[d.Date],
		})
	}
	return out
}

func sortedDays(days []DaySummary) []DaySummary {
	sorted := make([]DaySummary, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	return sorted
}
