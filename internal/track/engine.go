package track

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns at most one live session and wires the state machine, point
// buffer, backup store and upload syncer together. All session state is
// guarded by a single mutex so ingestion, flush acknowledgments and snapshot
// reads can never interleave into a torn view. No lock is held across a
// network call.
//
// Callers must run CheckRecoverable / Recover / Dismiss before the first
// Start; the engine itself only enforces the single-active-session rule.
type Engine struct {
	opts   Options
	store  Store
	remote RemoteClient
	hub    Broadcaster

	mu   sync.Mutex
	sess *active

	subMu sync.Mutex
	subs  []chan StateChange

	now func() time.Time
}

// active bundles everything owned by the live session.
type active struct {
	session Session
	fsm     *machine
	buf     *buffer

	// pendingFrom is the sequence of the oldest point not yet acknowledged
	// by the remote API. The pending set is always the buffer suffix at or
	// above it.
	pendingFrom int64

	// activeAccum plus the open segment is the recording duration with
	// paused intervals excluded. segmentStart is zero while paused.
	activeAccum  time.Duration
	segmentStart time.Time

	flushing     bool
	lastFlushErr error

	cancelLoop context.CancelFunc
}

func NewEngine(store Store, remote RemoteClient, hub Broadcaster, opts Options) *Engine {
	return &Engine{
		opts:   opts.withDefaults(),
		store:  store,
		remote: remote,
		hub:    hub,
		now:    time.Now,
	}
}

// Start begins a new recording session. The remote create call is handed to
// the flush loop; the session is usable locally before it completes.
func (e *Engine) Start(ctx context.Context, assoc Association) (Session, error) {
	if !assoc.Valid() {
		return Session{}, ErrInvalidAssociation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && !e.sess.session.Status.Terminal() {
		return Session{}, ErrSessionAlreadyActive
	}

	now := e.now()
	fsm := newMachine()
	if err := fsm.Transition(StatusRecording); err != nil {
		return Session{}, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.sess = &active{
		session: Session{
			ID:          uuid.NewString(),
			Status:      StatusRecording,
			Association: assoc,
			StartedAt:   now,
		},
		fsm:          fsm,
		buf:          newBuffer(),
		pendingFrom:  1,
		segmentStart: now,
		cancelLoop:   cancel,
	}

	e.saveBackupLocked(ctx)
	go e.flushLoop(loopCtx)

	e.notifyLocked(StatusIdle, StatusRecording)
	return e.sess.session, nil
}

// OnSample is the push ingress from the location source. It never blocks on
// the network: it validates, appends, reclassifies, writes the backup and
// returns. Rejections wrap ErrSampleRejected and leave the session healthy.
func (e *Engine) OnSample(ctx context.Context, s Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return ErrNotRecording
	}
	if e.sess.fsm.Status() != StatusRecording {
		return ErrNotRecording
	}

	activeDur := e.sess.activeAccum
	if !e.sess.segmentStart.IsZero() {
		if d := s.CapturedAt.Sub(e.sess.segmentStart); d > 0 {
			activeDur += d
		}
	}

	if _, err := e.sess.buf.Accept(s, activeDur); err != nil {
		return err
	}

	if label := Classify(e.sess.buf.Tail(classifyWindow)); label != "" {
		e.sess.session.Activity = label
	}

	e.saveBackupLocked(ctx)
	e.publishLocked()

	if e.pendingCountLocked() >= e.opts.BatchSize && !e.sess.flushing {
		go func() {
			if err := e.flushOnce(context.Background()); err != nil {
				log.Printf("track: flush after batch threshold: %v", err)
			}
		}()
	}
	return nil
}

// Pause freezes duration accumulation; samples are dropped until Resume.
func (e *Engine) Pause() (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return Session{}, &TransitionError{From: StatusIdle, To: StatusPaused}
	}
	from := e.sess.fsm.Status()
	if err := e.sess.fsm.Transition(StatusPaused); err != nil {
		return Session{}, err
	}
	e.sess.session.Status = StatusPaused
	if !e.sess.segmentStart.IsZero() {
		e.sess.activeAccum += e.now().Sub(e.sess.segmentStart)
		e.sess.segmentStart = time.Time{}
	}
	e.notifyLocked(from, StatusPaused)
	return e.sess.session, nil
}

// Resume restarts duration accumulation from the pause point. No gap point
// is inserted.
func (e *Engine) Resume() (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return Session{}, &TransitionError{From: StatusIdle, To: StatusRecording}
	}
	from := e.sess.fsm.Status()
	if err := e.sess.fsm.Transition(StatusRecording); err != nil {
		return Session{}, err
	}
	e.sess.session.Status = StatusRecording
	e.sess.segmentStart = e.now()
	e.notifyLocked(from, StatusRecording)
	return e.sess.session, nil
}

// Stop drains pending uploads synchronously, reports the final summary and
// completes the session. On persistent upload failure the session stays in
// stopping with its backup intact, and Stop may be retried.
func (e *Engine) Stop(ctx context.Context) (Session, error) {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return Session{}, &TransitionError{From: StatusIdle, To: StatusStopping}
	}
	from := e.sess.fsm.Status()
	if err := e.sess.fsm.Transition(StatusStopping); err != nil {
		e.mu.Unlock()
		return Session{}, err
	}
	e.sess.session.Status = StatusStopping
	if !e.sess.segmentStart.IsZero() {
		e.sess.activeAccum += e.now().Sub(e.sess.segmentStart)
		e.sess.segmentStart = time.Time{}
	}
	sessionID := e.sess.session.ID
	e.mu.Unlock()

	if from != StatusStopping {
		e.notify(from, StatusStopping)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.StopTimeout)
	defer cancel()

	if err := e.drainPending(ctx, sessionID); err != nil {
		return e.sessionCopy(), err
	}

	e.mu.Lock()
	if e.sess == nil || e.sess.session.ID != sessionID || e.sess.session.Status.Terminal() {
		sess := e.sessionCopyLocked()
		e.mu.Unlock()
		return sess, nil
	}
	remoteID := e.sess.session.RemoteID
	assoc := e.sess.session.Association
	activity := e.sess.session.Activity
	summary := e.summaryLocked()
	e.mu.Unlock()

	// A short empty session may reach here before the create ever ran.
	if remoteID == "" {
		id, err := e.remote.CreateSession(ctx, assoc, activity)
		if err != nil {
			e.setFlushErr(sessionID, err)
			return e.sessionCopy(), wrapUpload(err)
		}
		e.mu.Lock()
		if e.sess != nil && e.sess.session.ID == sessionID && !e.sess.session.Status.Terminal() {
			e.sess.session.RemoteID = id
		}
		e.mu.Unlock()
		remoteID = id
	}

	if err := e.remote.StopSession(ctx, remoteID, summary); err != nil {
		e.setFlushErr(sessionID, err)
		return e.sessionCopy(), wrapUpload(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.sess.session.ID != sessionID || e.sess.session.Status.Terminal() {
		return e.sessionCopyLocked(), nil
	}
	if err := e.sess.fsm.Transition(StatusCompleted); err != nil {
		return e.sessionCopyLocked(), err
	}
	e.sess.session.Status = StatusCompleted
	endedAt := e.now()
	e.sess.session.EndedAt = &endedAt
	e.sess.cancelLoop()
	if err := e.store.Clear(ctx, sessionID); err != nil {
		log.Printf("track: clear backup for %s: %v", sessionID, err)
	}
	e.notifyLocked(StatusStopping, StatusCompleted)
	return e.sess.session, nil
}

// Discard abandons the session from any non-terminal state. The backup is
// cleared regardless of any in-flight flush; a late acknowledgment is
// ignored because the session is terminal by then.
func (e *Engine) Discard(ctx context.Context) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return Session{}, ErrNoActiveSession
	}
	from := e.sess.fsm.Status()
	if err := e.sess.fsm.Transition(StatusDiscarded); err != nil {
		return Session{}, err
	}
	e.sess.session.Status = StatusDiscarded
	endedAt := e.now()
	e.sess.session.EndedAt = &endedAt
	e.sess.cancelLoop()
	if err := e.store.Clear(ctx, e.sess.session.ID); err != nil {
		log.Printf("track: clear backup for %s: %v", e.sess.session.ID, err)
	}
	e.notifyLocked(from, StatusDiscarded)
	return e.sess.session, nil
}

// Snapshot returns an immutable view of the live session, or false when no
// session exists.
func (e *Engine) Snapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return Snapshot{}, false
	}
	return e.snapshotLocked(), true
}

// Summary reports final totals for the live session.
func (e *Engine) Summary() (Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return Summary{}, false
	}
	return e.summaryLocked(), true
}

// Subscribe returns a buffered channel of state transitions. Slow consumers
// miss updates rather than blocking the engine.
func (e *Engine) Subscribe() chan StateChange {
	ch := make(chan StateChange, 16)
	e.subMu.Lock()
	e.subs = append(e.subs, ch)
	e.subMu.Unlock()
	return ch
}

func (e *Engine) Unsubscribe(ch chan StateChange) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for i, sub := range e.subs {
		if sub == ch {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Checkpoint force-saves the live session's backup record. Called on
// graceful shutdown so a redeploy behaves like a recoverable crash.
func (e *Engine) Checkpoint(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.sess.session.Status.Terminal() {
		return
	}
	e.saveBackupLocked(ctx)
}

func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.flushOnce(ctx); err != nil {
				log.Printf("track: scheduled flush: %v", err)
			}
		}
	}
}

// flushOnce uploads the oldest contiguous pending range. At most one flush
// is in flight; overlapping attempts are coalesced into no-ops.
func (e *Engine) flushOnce(ctx context.Context) error {
	e.mu.Lock()
	if e.sess == nil || e.sess.session.Status.Terminal() || e.sess.flushing {
		e.mu.Unlock()
		return nil
	}
	e.sess.flushing = true
	sessionID := e.sess.session.ID
	remoteID := e.sess.session.RemoteID
	assoc := e.sess.session.Association
	activity := e.sess.session.Activity
	batch := e.pendingBatchLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.sess != nil && e.sess.session.ID == sessionID {
			e.sess.flushing = false
		}
		e.mu.Unlock()
	}()

	if remoteID == "" {
		id, err := e.remote.CreateSession(ctx, assoc, activity)
		if err != nil {
			e.setFlushErr(sessionID, err)
			return wrapUpload(err)
		}
		e.mu.Lock()
		if e.sess != nil && e.sess.session.ID == sessionID && !e.sess.session.Status.Terminal() {
			e.sess.session.RemoteID = id
			e.saveBackupLocked(ctx)
		}
		e.mu.Unlock()
		remoteID = id
	}

	if len(batch) == 0 {
		return nil
	}

	err := e.remote.AppendPoints(ctx, remoteID, batch[0].Sequence, batch[len(batch)-1].Sequence, batch)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.sess.session.ID != sessionID || e.sess.session.Status.Terminal() {
		// Session discarded while the request was in flight; drop the ack.
		return nil
	}
	if err != nil {
		e.sess.lastFlushErr = wrapUpload(err)
		return e.sess.lastFlushErr
	}
	e.sess.lastFlushErr = nil
	e.sess.pendingFrom = batch[len(batch)-1].Sequence + 1
	e.saveBackupLocked(ctx)
	return nil
}

// drainPending flushes until nothing is pending or the context expires.
func (e *Engine) drainPending(ctx context.Context, sessionID string) error {
	for {
		e.mu.Lock()
		if e.sess == nil || e.sess.session.ID != sessionID {
			e.mu.Unlock()
			return nil
		}
		pending := e.pendingCountLocked()
		inFlight := e.sess.flushing
		e.mu.Unlock()

		if pending == 0 && !inFlight {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return wrapUpload(err)
		}
		if !inFlight {
			if err := e.flushOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return err
				}
				// Transient failure: back off briefly and retry within the
				// stop deadline.
			}
		}
		select {
		case <-ctx.Done():
			return wrapUpload(ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (e *Engine) pendingCountLocked() int {
	last, ok := e.sess.buf.Last()
	if !ok {
		return 0
	}
	n := last.Sequence - e.sess.pendingFrom + 1
	if n < 0 {
		return 0
	}
	return int(n)
}

func (e *Engine) pendingBatchLocked() []Point {
	points := e.sess.buf.Points()
	var batch []Point
	for _, p := range points {
		if p.Sequence < e.sess.pendingFrom {
			continue
		}
		batch = append(batch, p)
		if len(batch) >= e.opts.BatchSize {
			break
		}
	}
	return batch
}

func (e *Engine) saveBackupLocked(ctx context.Context) {
	rec := BackupRecord{
		Version:     BackupRecordVersion,
		SessionID:   e.sess.session.ID,
		RemoteID:    e.sess.session.RemoteID,
		Association: e.sess.session.Association,
		Activity:    e.sess.session.Activity,
		StartedAt:   e.sess.session.StartedAt,
		Points:      e.sess.buf.Points(),
		PendingFrom: e.sess.pendingFrom,
		SavedAt:     e.now(),
	}
	if err := e.store.Save(ctx, rec); err != nil {
		log.Printf("track: backup save for %s: %v", rec.SessionID, err)
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:     e.sess.session.ID,
		Status:        e.sess.session.Status,
		Activity:      e.sess.session.Activity,
		Points:        e.sess.buf.Points(),
		Stats:         e.sess.buf.Stats(),
		PendingUpload: e.pendingCountLocked(),
	}
	if e.sess.lastFlushErr != nil {
		snap.LastUploadError = e.sess.lastFlushErr.Error()
	}
	return snap
}

func (e *Engine) summaryLocked() Summary {
	stats := e.sess.buf.Stats()
	return Summary{
		SessionID:      e.sess.session.ID,
		PointCount:     e.sess.buf.Len(),
		DistanceM:      stats.DistanceM,
		DurationSec:    int64(stats.DurationSec),
		ElevationGainM: stats.ElevationGainM,
		AverageSpeedM:  stats.AvgSpeedMps,
	}
}

func (e *Engine) sessionCopy() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionCopyLocked()
}

func (e *Engine) sessionCopyLocked() Session {
	if e.sess == nil {
		return Session{}
	}
	return e.sess.session
}

func (e *Engine) setFlushErr(sessionID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil && e.sess.session.ID == sessionID {
		e.sess.lastFlushErr = wrapUpload(err)
	}
}

func (e *Engine) notify(from, to Status) {
	e.mu.Lock()
	e.notifyLocked(from, to)
	e.mu.Unlock()
}

func (e *Engine) notifyLocked(from, to Status) {
	change := StateChange{
		SessionID: e.sess.session.ID,
		From:      from,
		To:        to,
		At:        e.now(),
	}
	e.subMu.Lock()
	for _, sub := range e.subs {
		select {
		case sub <- change:
		default:
		}
	}
	e.subMu.Unlock()
	e.publishLocked()
}

// liveUpdate is the compact payload pushed to websocket subscribers.
type liveUpdate struct {
	SessionID string       `json:"session_id"`
	Status    Status       `json:"status"`
	Activity  ActivityType `json:"activity,omitempty"`
	Stats     Stats        `json:"stats"`
	LastPoint *Point       `json:"last_point,omitempty"`
	Pending   int          `json:"pending_upload"`
}

func (e *Engine) publishLocked() {
	if e.hub == nil {
		return
	}
	update := liveUpdate{
		SessionID: e.sess.session.ID,
		Status:    e.sess.session.Status,
		Activity:  e.sess.session.Activity,
		Stats:     e.sess.buf.Stats(),
		Pending:   e.pendingCountLocked(),
	}
	if last, ok := e.sess.buf.Last(); ok {
		update.LastPoint = &last
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	e.hub.Broadcast(update.SessionID, payload)
}

func wrapUpload(err error) error {
	if err == nil {
		return nil
	}
	return &uploadError{cause: err}
}

type uploadError struct {
	cause error
}

func (e *uploadError) Error() string {
	return ErrUploadFailed.Error() + ": " + e.cause.Error()
}

func (e *uploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

func (e *uploadError) Unwrap() error {
	return e.cause
}
