package track

import (
	"math"
	"time"

	"backend-parklookup/internal/shared/geo"
)

// buffer holds the accepted points of one session and keeps running stats
// up to date in O(1) per point. The engine serialises access.
type buffer struct {
	points  []Point
	stats   Stats
	nextSeq int64
}

func newBuffer() *buffer {
	return &buffer{nextSeq: 1}
}

func validCoords(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Accept validates the sample, appends it with the next sequence number and
// folds it into the running stats. activeDur is the wall-clock recording time
// up to the sample, with paused intervals already excluded by the engine.
func (b *buffer) Accept(s Sample, activeDur time.Duration) (Point, error) {
	if !validCoords(s.Lat, s.Lng) {
		return Point{}, ErrSampleInvalid
	}
	if n := len(b.points); n > 0 && !s.CapturedAt.After(b.points[n-1].CapturedAt) {
		return Point{}, ErrSampleOutOfOrder
	}

	p := Point{
		Sequence:   b.nextSeq,
		Lat:        s.Lat,
		Lng:        s.Lng,
		ElevationM: s.ElevationM,
		SpeedMps:   s.SpeedMps,
		AccuracyM:  s.AccuracyM,
		CapturedAt: s.CapturedAt,
	}

	if n := len(b.points); n > 0 {
		prev := b.points[n-1]
		b.stats.DistanceM += geo.HaversineM(prev.Lat, prev.Lng, p.Lat, p.Lng)
		if prev.ElevationM != nil && p.ElevationM != nil && *p.ElevationM > *prev.ElevationM {
			b.stats.ElevationGainM += *p.ElevationM - *prev.ElevationM
		}
	}
	if d := activeDur.Seconds(); d > b.stats.DurationSec {
		b.stats.DurationSec = d
	}
	if b.stats.DurationSec > 0 {
		b.stats.AvgSpeedMps = b.stats.DistanceM / b.stats.DurationSec
	}

	b.points = append(b.points, p)
	b.nextSeq++
	return p, nil
}

// Restore replaces the buffer contents with points from a backup record and
// recomputes every stat from scratch. Saved running totals are never trusted.
func (b *buffer) Restore(points []Point) {
	b.points = append([]Point(nil), points...)
	b.nextSeq = 1
	if n := len(b.points); n > 0 {
		b.nextSeq = b.points[n-1].Sequence + 1
	}
	b.stats = RecomputeStats(b.points)
}

// Points returns a copy so callers can never mutate accepted data.
func (b *buffer) Points() []Point {
	return append([]Point(nil), b.points...)
}

func (b *buffer) Len() int {
	return len(b.points)
}

func (b *buffer) Stats() Stats {
	return b.stats
}

func (b *buffer) Last() (Point, bool) {
	if len(b.points) == 0 {
		return Point{}, false
	}
	return b.points[len(b.points)-1], true
}

// Tail returns the accepted points captured within window of the last point.
func (b *buffer) Tail(window time.Duration) []Point {
	n := len(b.points)
	if n == 0 {
		return nil
	}
	cutoff := b.points[n-1].CapturedAt.Add(-window)
	i := n - 1
	for i > 0 && b.points[i-1].CapturedAt.After(cutoff) {
		i--
	}
	return b.points[i:]
}

// RecomputeStats derives the full stats from a point sequence. Used once
// during recovery; duration is the capture span of the sequence itself.
func RecomputeStats(points []Point) Stats {
	var st Stats
	if len(points) == 0 {
		return st
	}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		st.DistanceM += geo.HaversineM(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
		if prev.ElevationM != nil && cur.ElevationM != nil && *cur.ElevationM > *prev.ElevationM {
			st.ElevationGainM += *cur.ElevationM - *prev.ElevationM
		}
	}
	st.DurationSec = points[len(points)-1].CapturedAt.Sub(points[0].CapturedAt).Seconds()
	if st.DurationSec > 0 {
		st.AvgSpeedMps = st.DistanceM / st.DurationSec
	}
	return st
}
