package analysis

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sstent/garmindash/internal/models"
)

// Correlation pairs two daily series and fits a line through them.
type Correlation struct {
	Dates []time.Time
	X     []float64
	Y     []float64
	// R is Pearson's coefficient, zero when undefined.
	R         float64
	Slope     float64
	Intercept float64
}

// N is the number of paired days.
func (c Correlation) N() int { return len(c.X) }

// Line returns the fitted Y at x.
func (c Correlation) Line(x float64) float64 { return c.Intercept + c.Slope*x }

// Strength describes |R| in words.
func (c Correlation) Strength() string {
	r := math.Abs(c.R)
	switch {
	case c.N() < 3:
		return "insufficient data"
	case r >= 0.7:
		return "strong"
	case r >= 0.4:
		return "moderate"
	case r >= 0.2:
		return "weak"
	default:
		return "none"
	}
}

// Correlate pairs x and y by date and fits y = Intercept + Slope*x.
func Correlate(x, y []Point) Correlation {
	return CorrelateLagged(x, y, 0)
}

// CorrelateLagged pairs each x with the y recorded lagDays later, so a lag
// of one relates a day to the next day's value. Dates are those of x.
func CorrelateLagged(x, y []Point, lagDays int) Correlation {
	ys := make(map[string]float64, len(y))
	for _, p := range y {
		ys[p.Date.Format(models.DateLayout)] = p.Value
	}

	var c Correlation
	for _, p := range x {
		v, ok := ys[p.Date.AddDate(0, 0, lagDays).Format(models.DateLayout)]
		if !ok {
			continue
		}
		c.Dates = append(c.Dates, p.Date)
		c.X = append(c.X, p.Value)
		c.Y = append(c.Y, v)
	}
	if c.N() < 2 {
		return c
	}

	r := stat.Correlation(c.X, c.Y, nil)
	if !math.IsNaN(r) {
		c.R = r
	}
	if stat.Variance(c.X, nil) > 0 {
		c.Intercept, c.Slope = stat.LinearRegression(c.X, c.Y, nil, false)
	}
	return c
}

// SleepHRVCorrelation relates hours slept to the HRV of the same night.
func SleepHRVCorrelation(nights []SleepNight, hrv []HRVDay) Correlation {
	x := make([]Point, 0, len(nights))
	for _, n := range nights {
		x = append(x, Point{Date: n.Date, Value: n.Hours()})
	}
	y := make([]Point, 0, len(hrv))
	for _, d := range hrv {
		y = append(y, Point{Date: d.Date, Value: d.LastNight})
	}
	return Correlate(x, y)
}

// DailyMetric is a daily series that can be correlated with another.
type DailyMetric struct {
	Key   string
	Label string
	Unit  string

	metric models.MetricType
	field  string
	div    float64
}

// DailyMetrics lists every series offered by the correlation explorer.
var DailyMetrics = []DailyMetric{
	{"resting_hr", "Resting HR", "bpm", models.MetricDailySummary, models.FieldRestingHR, 1},
	{"avg_stress", "Average stress", "", models.MetricDailySummary, models.FieldAvgStress, 1},
	{"total_steps", "Total steps", "", models.MetricDailySummary, models.FieldTotalSteps, 1},
	{"active_kcal", "Active calories", "kcal", models.MetricDailySummary, models.FieldActiveCalories, 1},
	{"body_battery_wake", "Body battery at wake", "%", models.MetricDailySummary, models.FieldBodyBatteryWake, 1},
	{"body_battery_high", "Body battery high", "%", models.MetricDailySummary, models.FieldBodyBatteryHigh, 1},
	{"body_battery_low", "Body battery low", "%", models.MetricDailySummary, models.FieldBodyBatteryLow, 1},
	{"highly_active_min", "Highly active time", "min", models.MetricDailySummary, models.FieldHighlyActiveMin, 1},
	{"sedentary_min", "Sedentary time", "min", models.MetricDailySummary, models.FieldSedentaryMin, 1},
	{"moderate_intensity_min", "Moderate intensity", "min", models.MetricDailySummary, models.FieldModerateIntensity, 1},
	{"vigorous_intensity_min", "Vigorous intensity", "min", models.MetricDailySummary, models.FieldVigorousIntensity, 1},
	{"sleep_hours", "Sleep duration", "h", models.MetricSleep, models.FieldSleepDuration, 60},
	{"sleep_score", "Sleep score", "", models.MetricSleep, models.FieldSleepScore, 1},
	{"hrv", "Overnight HRV", "ms", models.MetricHRV, models.FieldHRVLastNight, 1},
}

// LookupDailyMetric finds a metric by key.
func LookupDailyMetric(key string) (DailyMetric, bool) {
	for _, m := range DailyMetrics {
		if m.Key == key {
			return m, true
		}
	}
	return DailyMetric{}, false
}

// Series extracts the metric from records.
func (m DailyMetric) Series(records []models.Record) []Point {
	points := DailySeries(records, m.metric, m.field)
	for i := range points {
		points[i].Value /= m.div
	}
	return points
}

// AxisName is the label with its unit, if any.
func (m DailyMetric) AxisName() string {
	if m.Unit == "" {
		return m.Label
	}
	return m.Label + " (" + m.Unit + ")"
}

// MetricPair names two daily metrics to correlate. With NextDay set, X is
// paired with the following day's Y.
type MetricPair struct {
	X, Y    string
	NextDay bool
}

// Title describes the pair, e.g. "Sleep duration vs next day's Resting HR".
func (p MetricPair) Title() string {
	x, _ := LookupDailyMetric(p.X)
	y, _ := LookupDailyMetric(p.Y)
	if p.NextDay {
		return x.Label + " vs next day's " + y.Label
	}
	return x.Label + " vs " + y.Label
}

// Validate checks both keys are known.
func (p MetricPair) Validate() error {
	for _, k := range []string{p.X, p.Y} {
		if _, ok := LookupDailyMetric(k); !ok {
			return fmt.Errorf("unknown daily metric %q", k)
		}
	}
	if p.X == p.Y && !p.NextDay {
		return fmt.Errorf("cannot correlate %q with itself on the same day", p.X)
	}
	return nil
}

// Correlate computes the pair's correlation over records, which may mix
// metric types.
func (p MetricPair) Correlate(records []models.Record) (Correlation, error) {
	if err := p.Validate(); err != nil {
		return Correlation{}, err
	}
	x, _ := LookupDailyMetric(p.X)
	y, _ := LookupDailyMetric(p.Y)
	lag := 0
	if p.NextDay {
		lag = 1
	}
	return CorrelateLagged(x.Series(records), y.Series(records), lag), nil
}

// DefaultPair is what the explorer shows before the user picks.
var DefaultPair = MetricPair{X: "avg_stress", Y: "resting_hr"}

// KeyPairs are the relationships shown on the correlations page.
var KeyPairs = []MetricPair{
	{X: "avg_stress", Y: "resting_hr"},
	{X: "sleep_hours", Y: "resting_hr", NextDay: true},
	{X: "sleep_hours", Y: "avg_stress", NextDay: true},
	{X: "active_kcal", Y: "avg_stress"},
	{X: "total_steps", Y: "sleep_hours"},
	{X: "sleep_hours", Y: "body_battery_wake"},
}

// SleepNextDayRHR relates hours slept to the resting HR of the day after.
func SleepNextDayRHR(nights []SleepNight, days []DaySummary) Correlation {
	x := make([]Point, 0, len(nights))
	for _, n := range nights {
		x = append(x, Point{Date: n.Date, Value: n.Hours()})
	}
	y := make([]Point, 0, len(days))
	for _, d := range days {
		if d.RestingHR > 0 {
			y = append(y, Point{Date: d.Date, Value: d.RestingHR})
		}
	}
	return CorrelateLagged(x, y, 1)
}
