// internal/parser/tcx_parser.go
package parser

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/sstent/garmindash/internal/models"
)

// TCX Parser Implementation
type TCXParser struct{}

type TCXTrainingCenterDatabase struct {
	Activities TCXActivities `xml:"Activities"`
}

type TCXActivities struct {
	Activity []TCXActivity `xml:"Activity"`
}

type TCXActivity struct {
	Sport string   `xml:"Sport,attr"`
	Laps  []TCXLap `xml:"Lap"`
}

type TCXLap struct {
	StartTime        string       `xml:"StartTime,attr"`
	TotalTimeSeconds float64      `xml:"TotalTimeSeconds"`
	DistanceMeters   float64      `xml:"DistanceMeters"`
	Calories         int          `xml:"Calories"`
	AverageHeartRate TCXHeartRate `xml:"AverageHeartRateBpm"`
	MaximumHeartRate TCXHeartRate `xml:"MaximumHeartRateBpm"`
	Track            TCXTrack     `xml:"Track"`
}

type TCXHeartRate struct {
	Value int `xml:"Value"`
}

type TCXTrack struct {
	Trackpoints []TCXTrackpoint `xml:"Trackpoint"`
}

type TCXTrackpoint struct {
	Time         string       `xml:"Time"`
	HeartRateBpm TCXHeartRate `xml:"HeartRateBpm"`
}

func (p *TCXParser) ParseData(data []byte) (*models.ActivityMetrics, error) {
	var tcx TCXTrainingCenterDatabase
	if err := xml.Unmarshal(data, &tcx); err != nil {
		return nil, fmt.Errorf("failed to decode TCX file: %w", err)
	}

	if len(tcx.Activities.Activity) == 0 || len(tcx.Activities.Activity[0].Laps) == 0 {
		return nil, fmt.Errorf("no activity data found")
	}

	activity := tcx.Activities.Activity[0]
	metrics := &models.ActivityMetrics{
		ActivityType: mapTCXSportType(activity.Sport),
	}

	if startTime, err := time.Parse(time.RFC3339, activity.Laps[0].StartTime); err == nil {
		metrics.StartTime = startTime.UTC()
	}

	// Aggregate data from all laps
	var totalDuration, totalDistance float64
	var maxHR, totalCalories int

	for _, lap := range activity.Laps {
		totalDuration += lap.TotalTimeSeconds
		totalDistance += lap.DistanceMeters
		totalCalories += lap.Calories

		if lap.MaximumHeartRate.Value > maxHR {
			maxHR = lap.MaximumHeartRate.Value
		}

		for _, tp := range lap.Track.Trackpoints {
			if tp.HeartRateBpm.Value <= 0 {
				continue
			}
			t, err := time.Parse(time.RFC3339, tp.Time)
			if err != nil {
				continue
			}
			metrics.HeartRate = append(metrics.HeartRate, models.HRSample{
				Time: t.UTC(),
				BPM:  float64(tp.HeartRateBpm.Value),
			})
		}
	}

	metrics.Duration = time.Duration(totalDuration * float64(time.Second))
	metrics.Distance = totalDistance
	metrics.MaxHeartRate = maxHR
	metrics.Calories = totalCalories
	metrics.AvgHeartRate = averageBPM(metrics.HeartRate)

	return metrics, nil
}

func mapTCXSportType(sport string) string {
	switch sport {
	case "Running":
		return "running"
	case "Biking":
		return "cycling"
	case "Swimming":
		return "swimming"
	default:
		return "other"
	}
}

func averageBPM(samples []models.HRSample) int {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.BPM
	}
	return int(sum / float64(len(samples)))
}
