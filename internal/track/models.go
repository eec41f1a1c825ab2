package track

import "time"

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusDiscarded Status = "discarded"
)

// Terminal reports whether a session in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDiscarded
}

type ActivityType string

const (
	ActivityWalking ActivityType = "walking"
	ActivityHiking  ActivityType = "hiking"
	ActivityBiking  ActivityType = "biking"
	ActivityDriving ActivityType = "driving"
)

// Association ties a session to the place it was recorded at. Exactly one
// field must be set; it is fixed at session creation.
type Association struct {
	ParkCode    string `json:"park_code,omitempty"`
	ParkID      string `json:"park_id,omitempty"`
	LocalParkID string `json:"local_park_id,omitempty"`
	TrailID     string `json:"trail_id,omitempty"`
}

func (a Association) Valid() bool {
	n := 0
	for _, v := range []string{a.ParkCode, a.ParkID, a.LocalParkID, a.TrailID} {
		if v != "" {
			n++
		}
	}
	return n == 1
}

// Sample is a raw reading pushed by the location source, before validation.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ElevationM *float64  `json:"elevation_m,omitempty"`
	SpeedMps   *float64  `json:"speed_mps,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Point is an accepted sample. Sequence starts at 1 and is the idempotency
// key for uploads.
type Point struct {
	Sequence   int64     `json:"sequence"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ElevationM *float64  `json:"elevation_m,omitempty"`
	SpeedMps   *float64  `json:"speed_mps,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Stats are running totals maintained incrementally as points are accepted.
type Stats struct {
	DistanceM      float64 `json:"distance_m"`
	DurationSec    float64 `json:"duration_sec"`
	ElevationGainM float64 `json:"elevation_gain_m"`
	AvgSpeedMps    float64 `json:"avg_speed_mps"`
}

type Session struct {
	ID          string       `json:"id"`
	RemoteID    string       `json:"remote_id,omitempty"`
	Status      Status       `json:"status"`
	Activity    ActivityType `json:"activity,omitempty"`
	Association Association  `json:"association"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
}

// Snapshot is an immutable view of the active session for live readers.
type Snapshot struct {
	SessionID       string       `json:"session_id"`
	Status          Status       `json:"status"`
	Activity        ActivityType `json:"activity,omitempty"`
	Points          []Point      `json:"points"`
	Stats           Stats        `json:"stats"`
	PendingUpload   int          `json:"pending_upload"`
	LastUploadError string       `json:"last_upload_error,omitempty"`
}

// Summary is the final report sent to the remote API when a session stops.
type Summary struct {
	SessionID      string  `json:"session_id"`
	PointCount     int     `json:"point_count"`
	DistanceM      float64 `json:"distance_m"`
	DurationSec    int64   `json:"duration_sec"`
	ElevationGainM float64 `json:"elevation_gain_m"`
	AverageSpeedM  float64 `json:"average_speed_mps"`
}

// StateChange is delivered to subscribers on every session transition.
type StateChange struct {
	SessionID string    `json:"session_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
}

// BackupRecordVersion is bumped whenever the persisted record layout changes.
const BackupRecordVersion = 1

// BackupRecord is the durable snapshot written to the backup store on every
// mutation. PendingFrom is the sequence of the oldest unacknowledged point;
// the pending set is always the suffix of Points at or above it.
type BackupRecord struct {
	Version     int          `json:"version"`
	SessionID   string       `json:"session_id"`
	RemoteID    string       `json:"remote_id,omitempty"`
	Association Association  `json:"association"`
	Activity    ActivityType `json:"activity,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	Points      []Point      `json:"points"`
	PendingFrom int64        `json:"pending_from"`
	SavedAt     time.Time    `json:"saved_at"`
}

// BackupInfo describes a recoverable session without loading it.
type BackupInfo struct {
	SessionID   string      `json:"session_id"`
	Association Association `json:"association"`
	PointCount  int         `json:"point_count"`
	SavedAt     time.Time   `json:"saved_at"`
}
