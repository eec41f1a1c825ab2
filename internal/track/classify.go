package track

import (
	"math"
	"time"

	"backend-parklookup/internal/shared/geo"
)

const (
	classifyWindow   = 60 * time.Second
	classifyMinCount = 4
	classifyMinSpan  = 10 * time.Second

	// Mean-speed thresholds in m/s. Roughly: above ~43 km/h is a vehicle,
	// a steady 3-12 m/s is a bike, anything slower is on foot.
	drivingSpeed = 12.0
	bikingSpeed  = 3.0

	// On-foot climbs faster than ~250 m/h read as hiking rather than walking.
	hikingGainRate = 0.07

	// Coefficient of variation below which a speed profile counts as smooth.
	smoothSpeedCV = 0.45
)

// Classify infers a coarse activity label from the most recent points. It is
// advisory only: an empty label means not enough data yet, and the caller
// keeps whatever label was last confidently produced.
func Classify(window []Point) ActivityType {
	if len(window) < classifyMinCount {
		return ""
	}
	span := window[len(window)-1].CapturedAt.Sub(window[0].CapturedAt)
	if span < classifyMinSpan {
		return ""
	}

	speeds := make([]float64, 0, len(window))
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		if cur.SpeedMps != nil && *cur.SpeedMps >= 0 {
			speeds = append(speeds, *cur.SpeedMps)
			continue
		}
		dt := cur.CapturedAt.Sub(prev.CapturedAt).Seconds()
		if dt > 0 {
			speeds = append(speeds, geo.HaversineM(prev.Lat, prev.Lng, cur.Lat, cur.Lng)/dt)
		}
	}
	if len(speeds) == 0 {
		return ""
	}

	mean, stddev := meanStddev(speeds)

	switch {
	case mean >= drivingSpeed:
		return ActivityDriving
	case mean >= bikingSpeed && mean > 0 && stddev/mean < smoothSpeedCV:
		return ActivityBiking
	}

	if gainRate(window, span) >= hikingGainRate {
		return ActivityHiking
	}
	return ActivityWalking
}

func meanStddev(xs []float64) (mean, stddev float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func gainRate(window []Point, span time.Duration) float64 {
	var gain float64
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		if prev.ElevationM != nil && cur.ElevationM != nil && *cur.ElevationM > *prev.ElevationM {
			gain += *cur.ElevationM - *prev.ElevationM
		}
	}
	if span <= 0 {
		return 0
	}
	return gain / span.Seconds()
}
