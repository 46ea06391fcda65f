package parser

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tormoder/fit"

	"github.com/sstent/garmindash/internal/models"
)

const (
	invalidUint8  = 0xFF
	invalidUint16 = 0xFFFF
	invalidUint32 = 0xFFFFFFFF
)

type FITParser struct{}

func NewFITParser() *FITParser {
	return &FITParser{}
}

func (p *FITParser) ParseData(data []byte) (*models.ActivityMetrics, error) {
	fitFile, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	activity, err := fitFile.Activity()
	if err != nil {
		return nil, fmt.Errorf("failed to get activity from FIT: %w", err)
	}

	return metricsFromActivity(activity)
}

func metricsFromActivity(activity *fit.ActivityFile) (*models.ActivityMetrics, error) {
	if len(activity.Sessions) == 0 {
		return nil, fmt.Errorf("no sessions found in FIT file")
	}

	session := activity.Sessions[0]
	metrics := &models.ActivityMetrics{
		ActivityType: mapFITSport(session.Sport),
		StartTime:    session.StartTime,
	}

	// Timer time is stored in milliseconds, distance in centimetres
	if session.TotalTimerTime != invalidUint32 {
		metrics.Duration = time.Duration(session.TotalTimerTime) * time.Millisecond
	}
	if session.TotalDistance != invalidUint32 {
		metrics.Distance = float64(session.TotalDistance) / 100
	}

	// Heart rate
	if session.AvgHeartRate != invalidUint8 {
		metrics.AvgHeartRate = int(session.AvgHeartRate)
	}
	if session.MaxHeartRate != invalidUint8 {
		metrics.MaxHeartRate = int(session.MaxHeartRate)
	}

	// Calories
	if session.TotalCalories != invalidUint16 {
		metrics.Calories = int(session.TotalCalories)
	}

	for _, rec := range activity.Records {
		if rec == nil || rec.HeartRate == invalidUint8 || rec.HeartRate == 0 || rec.Timestamp.IsZero() {
			continue
		}
		metrics.HeartRate = append(metrics.HeartRate, models.HRSample{
			Time: rec.Timestamp.UTC(),
			BPM:  float64(rec.HeartRate),
		})
	}

	return metrics, nil
}

func mapFITSport(sport fit.Sport) string {
	switch sport {
	case fit.SportRunning:
		return "running"
	case fit.SportCycling:
		return "cycling"
	case fit.SportSwimming:
		return "swimming"
	default:
		return "other"
	}
}
