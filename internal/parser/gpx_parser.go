package parser

import (
	"encoding/xml"
	"fmt"
	"math"
	"time"

	"github.com/sstent/garmindash/internal/models"
)

// GPX represents the root element of a GPX file
type GPX struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []GPXTrack `xml:"trk"`
}

type GPXTrack struct {
	Name     string       `xml:"name"`
	Type     string       `xml:"type"`
	Segments []GPXSegment `xml:"trkseg"`
}

type GPXSegment struct {
	Points []GPXPoint `xml:"trkpt"`
}

type GPXPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Time string  `xml:"time"`
	HR   int     `xml:"extensions>TrackPointExtension>hr"`
}

// GPXParser implements the Parser interface for GPX files
type GPXParser struct{}

func (p *GPXParser) ParseData(data []byte) (*models.ActivityMetrics, error) {
	var gpx GPX
	if err := xml.Unmarshal(data, &gpx); err != nil {
		return nil, fmt.Errorf("failed to decode GPX file: %w", err)
	}

	var points []GPXPoint
	for _, track := range gpx.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no track points found")
	}

	metrics := &models.ActivityMetrics{ActivityType: "other"}
	if t := gpx.Tracks[0].Type; t != "" {
		metrics.ActivityType = t
	}

	var startTime, endTime time.Time
	maxHR := 0
	for i, point := range points {
		if t, err := time.Parse(time.RFC3339, point.Time); err == nil {
			t = t.UTC()
			if startTime.IsZero() {
				startTime = t
			}
			endTime = t
			if point.HR > 0 {
				metrics.HeartRate = append(metrics.HeartRate, models.HRSample{Time: t, BPM: float64(point.HR)})
			}
		}
		if point.HR > maxHR {
			maxHR = point.HR
		}
		if i > 0 {
			prev := points[i-1]
			metrics.Distance += haversine(prev.Lat, prev.Lon, point.Lat, point.Lon)
		}
	}

	metrics.StartTime = startTime
	if !startTime.IsZero() {
		metrics.Duration = endTime.Sub(startTime)
	}
	metrics.MaxHeartRate = maxHR
	metrics.AvgHeartRate = averageBPM(metrics.HeartRate)

	return metrics, nil
}

// haversine calculates the distance in metres between two points on Earth
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*
			math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
