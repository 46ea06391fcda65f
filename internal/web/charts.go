package web

import (
	"bytes"
	"html/template"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sstent/garmindash/internal/analysis"
	"github.com/sstent/garmindash/internal/models"
)

const chartTheme = "macarons"

var zoneNames = []string{"Zone 1", "Zone 2", "Zone 3", "Zone 4", "Zone 5"}

type renderer interface {
	Render(w io.Writer) error
}

// embedChart renders a chart into an HTML fragment for a page.
func (s *Server) embedChart(chart renderer) template.HTML {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		s.log.Error().Err(err).Msg("Failed to render chart")
		return ""
	}
	return template.HTML(buf.String())
}

func globalOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Theme: chartTheme, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{
				Rotate: 45,
			},
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
	}
}

func dates(points []analysis.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Date.Format(models.DateLayout)
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// generateLineItems converts values to LineData, leaving zero values as gaps.
func generateLineItems(values []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(values))
	for _, v := range values {
		if v == 0 {
			items = append(items, opts.LineData{Value: "-"})
			continue
		}
		items = append(items, opts.LineData{Value: round(v, 2)})
	}
	return items
}

func generateBarItems(values []float64) []opts.BarData {
	items := make([]opts.BarData, 0, len(values))
	for _, v := range values {
		items = append(items, opts.BarData{Value: round(v, 2)})
	}
	return items
}

func hrvChart(days []analysis.HRVDay) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Heart Rate Variability", "Overnight average (ms)")...)

	x := make([]string, len(days))
	last := make([]float64, len(days))
	weekly := make([]float64, len(days))
	low := make([]float64, len(days))
	high := make([]float64, len(days))
	for i, d := range days {
		x[i] = d.Date.Format(models.DateLayout)
		last[i], weekly[i] = d.LastNight, d.WeeklyAvg
		low[i], high[i] = d.BaselineLow, d.BaselineHigh
	}

	line.SetXAxis(x).
		AddSeries("Last night", generateLineItems(last)).
		AddSeries("7-day average", generateLineItems(weekly)).
		AddSeries("Baseline low", generateLineItems(low), charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"})).
		AddSeries("Baseline high", generateLineItems(high), charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func seriesChart(title, subtitle, name string, points []analysis.Point) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts(title, subtitle)...)
	line.SetXAxis(dates(points)).AddSeries(name, generateLineItems(analysis.Values(points)))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func sleepStagesChart(nights []analysis.SleepNight) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Sleep", "Hours per stage")...)

	x := make([]string, len(nights))
	stages := map[string][]float64{}
	order := []string{"Deep", "Light", "REM", "Awake"}
	for i, n := range nights {
		x[i] = n.Date.Format(models.DateLayout)
		stages["Deep"] = append(stages["Deep"], n.DeepMin/60)
		stages["Light"] = append(stages["Light"], n.LightMin/60)
		stages["REM"] = append(stages["REM"], n.REMMin/60)
		stages["Awake"] = append(stages["Awake"], n.AwakeMin/60)
	}

	bar.SetXAxis(x)
	for _, name := range order {
		bar.AddSeries(name, generateBarItems(stages[name]))
	}
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	return bar
}

func stressChart(buckets [4]int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Stress", "Days per average stress level")...)
	items := make([]opts.BarData, len(buckets))
	for i, n := range buckets {
		items[i] = opts.BarData{Value: n}
	}
	bar.SetXAxis([]string{"Rest (0-25)", "Low (26-50)", "Medium (51-75)", "High (76-100)"}).
		AddSeries("Days", items)
	return bar
}

func efficiencyChart(points []analysis.EfficiencyPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Aerobic Efficiency", "Zone 2 runs, metres per minute per bpm")...)

	x := make([]string, len(points))
	eff := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date.Format(models.DateLayout)
		eff[i] = p.Efficiency
	}
	line.SetXAxis(x).AddSeries("Efficiency", generateLineItems(eff),
		charts.WithMarkLineNameTypeItemOpts(opts.MarkLineNameTypeItem{Name: "Average", Type: "average"}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func zoneDistributionChart(weeks []analysis.ZoneWeek) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Time in Heart Rate Zones", "Minutes per week")...)

	x := make([]string, len(weeks))
	for i, w := range weeks {
		x[i] = w.WeekStart.Format(models.DateLayout)
	}
	bar.SetXAxis(x)
	for z, name := range zoneNames {
		values := make([]float64, len(weeks))
		for i, w := range weeks {
			values[i] = w.Minutes[z]
		}
		bar.AddSeries(name, generateBarItems(values))
	}
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	return bar
}

func paceByZoneChart(paces []analysis.ZonePace) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Pace by Heart Rate Zone", "Weekly mean, min/km")...)

	var weeks []string
	index := map[string]int{}
	for _, p := range paces {
		w := p.WeekStart.Format(models.DateLayout)
		if _, ok := index[w]; !ok {
			index[w] = len(weeks)
			weeks = append(weeks, w)
		}
	}

	line.SetXAxis(weeks)
	for _, zone := range zoneNames {
		values := make([]float64, len(weeks))
		found := false
		for _, p := range paces {
			if p.Zone == zone {
				values[index[p.WeekStart.Format(models.DateLayout)]] = p.PaceMinPerKm
				found = true
			}
		}
		if found {
			line.AddSeries(zone, generateLineItems(values), charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}))
		}
	}
	return line
}

func loadChart(points []analysis.ACWRPoint) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Daily Training Load", "")...)

	x := make([]string, len(points))
	load := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date.Format(models.DateLayout)
		load[i] = p.Load
	}
	bar.SetXAxis(x).AddSeries("Load", generateBarItems(load))
	return bar
}

func acwrChart(points []analysis.ACWRPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Acute:Chronic Workload Ratio", "7-day vs 28-day load")...)

	x := make([]string, len(points))
	acute := make([]float64, len(points))
	chronic := make([]float64, len(points))
	ratio := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date.Format(models.DateLayout)
		acute[i], chronic[i], ratio[i] = p.Acute, p.Chronic, p.Ratio
	}

	line.SetXAxis(x).
		AddSeries("Acute (7d)", generateLineItems(acute)).
		AddSeries("Chronic (28d)", generateLineItems(chronic)).
		AddSeries("Ratio", generateLineItems(ratio),
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "Optimal low", YAxis: analysis.ACWRLow},
				opts.MarkLineNameYAxisItem{Name: "High risk", YAxis: analysis.ACWRHigh},
			))
	return line
}

// scatterLabels names the parts of a correlation chart.
type scatterLabels struct {
	Title    string
	Subtitle string
	X        string
	Y        string
	Series   string
}

func correlationChart(c analysis.Correlation, l scatterLabels) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: chartTheme, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: l.Title, Subtitle: l.Subtitle}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: l.X, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: l.Y, Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)

	items := make([]opts.ScatterData, c.N())
	for i := range c.X {
		items[i] = opts.ScatterData{
			Name:  c.Dates[i].Format(models.DateLayout),
			Value: []float64{round(c.X[i], 2), round(c.Y[i], 1)},
		}
	}
	scatter.AddSeries(l.Series, items)

	if c.N() >= 2 && c.Slope != 0 {
		lo, hi := c.X[0], c.X[0]
		for _, x := range c.X {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		trend := charts.NewLine()
		trend.AddSeries("Trend", []opts.LineData{
			{Value: []float64{round(lo, 2), round(c.Line(lo), 1)}},
			{Value: []float64{round(hi, 2), round(c.Line(hi), 1)}},
		})
		scatter.Overlap(trend)
	}
	return scatter
}

func bodyBatteryChart(days []analysis.BodyBatteryDay) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(append(globalOpts("Morning Body Battery", "At wake time, with the night before"),
		charts.WithYAxisOpts(opts.YAxis{Name: "Body battery", Type: "value", Max: 100}))...)
	line.ExtendYAxis(opts.YAxis{Name: "Sleep (h)", Type: "value", Position: "right"})

	x := make([]string, len(days))
	wake := make([]float64, len(days))
	high := make([]float64, len(days))
	low := make([]float64, len(days))
	sleep := make([]float64, len(days))
	for i, d := range days {
		x[i] = d.Date.Format(models.DateLayout)
		wake[i], high[i], low[i], sleep[i] = d.Wake, d.High, d.Low, d.SleepHours
	}

	line.SetXAxis(x).
		AddSeries("At wake", generateLineItems(wake)).
		AddSeries("Highest", generateLineItems(high), charts.WithLineStyleOpts(opts.LineStyle{Type: "dotted"})).
		AddSeries("Lowest", generateLineItems(low), charts.WithLineStyleOpts(opts.LineStyle{Type: "dotted"})).
		AddSeries("Previous night sleep", generateLineItems(sleep),
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	return line
}

func activityLevelChart(weeks []analysis.ActivityLevelWeek) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Activity Levels", "Average minutes per day, by week")...)

	x := make([]string, len(weeks))
	levels := make([][]float64, 4)
	for i, w := range weeks {
		x[i] = w.WeekStart.Format(models.DateLayout)
		levels[0] = append(levels[0], w.HighlyActive)
		levels[1] = append(levels[1], w.Active)
		levels[2] = append(levels[2], w.Sedentary)
		levels[3] = append(levels[3], w.Sleeping)
	}
	bar.SetXAxis(x)
	for i, name := range []string{"Highly active", "Active", "Sedentary", "Sleeping"} {
		bar.AddSeries(name, generateBarItems(levels[i]))
	}
	return bar
}

func intensityChart(weeks []analysis.IntensityWeek) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Intensity Minutes", "Weekly, vigorous minutes count double")...)

	x := make([]string, len(weeks))
	achieved := make([]float64, len(weeks))
	goal := make([]float64, len(weeks))
	for i, w := range weeks {
		x[i] = w.WeekStart.Format(models.DateLayout)
		achieved[i], goal[i] = w.Weighted, w.Goal
	}
	bar.SetXAxis(x).AddSeries("Achieved", generateBarItems(achieved))

	goalLine := charts.NewLine()
	goalLine.SetXAxis(x).AddSeries("Goal", generateLineItems(goal),
		charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	bar.Overlap(goalLine)
	return bar
}

func longRunChart(weeks []analysis.Point) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Long Run Progression", "Longest run per week (km)")...)
	bar.SetXAxis(dates(weeks)).AddSeries("Longest run", generateBarItems(analysis.Values(weeks)))
	return bar
}

func paceHRChart(points []analysis.PaceHRPoint) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: chartTheme, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pace vs Average HR", Subtitle: "All runs, point size by aerobic training effect"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Pace (min/km)", Scale: opts.Bool(true), Inverse: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Avg HR (bpm)", Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)

	items := make([]opts.ScatterData, len(points))
	for i, p := range points {
		items[i] = opts.ScatterData{
			Name:       p.Date.Format(models.DateLayout) + " " + p.Name,
			Value:      []float64{round(p.PaceMinPerKm, 2), round(p.AvgHR, 0), round(p.DistanceKm, 1)},
			SymbolSize: 8 + int(math.Round(p.AerobicTE*4)),
		}
	}
	scatter.AddSeries("Runs", items)
	return scatter
}
