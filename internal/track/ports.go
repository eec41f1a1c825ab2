package track

import (
	"context"
	"time"
)

// Store is the durable key-value backup interface. The most recent
// successful Save must be recoverable after a crash; nothing stronger is
// required because sequence numbers are never reused and uploads are
// idempotent per sequence range.
type Store interface {
	Save(ctx context.Context, rec BackupRecord) error
	Load(ctx context.Context, sessionID string) (BackupRecord, bool, error)
	Clear(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// RemoteClient talks to the remote tracking API. AppendPoints must be
// idempotent per sequence range on the server side; the engine may resend a
// range after an ambiguous network failure.
type RemoteClient interface {
	CreateSession(ctx context.Context, assoc Association, activity ActivityType) (remoteID string, err error)
	AppendPoints(ctx context.Context, remoteID string, seqStart, seqEnd int64, points []Point) error
	StopSession(ctx context.Context, remoteID string, summary Summary) error
}

// Broadcaster receives live session updates; *stream.Hub satisfies it.
type Broadcaster interface {
	Broadcast(sessionID string, payload []byte)
}

// Options tune the upload pipeline. Zero values fall back to defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	StopTimeout   time.Duration
}

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultStopTimeout   = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	return o
}
