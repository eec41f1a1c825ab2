package track

import (
	"context"
	"errors"
	"log"
	"time"
)

// CheckRecoverable lists orphaned backup records left by a crash. It mutates
// nothing; records that fail structural validation are reported in the log
// and skipped, as if no backup existed. A record with no points — a crash
// between Start and the first accepted sample — is listed with PointCount 0
// so the caller can Dismiss it; Recover rejects it.
func (e *Engine) CheckRecoverable(ctx context.Context) ([]BackupInfo, error) {
	ids, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var infos []BackupInfo
	for _, id := range ids {
		rec, ok, err := e.store.Load(ctx, id)
		if errors.Is(err, ErrRecoveryCorrupt) {
			log.Printf("track: skipping backup %s: %v", id, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(rec.Points) == 0 {
			if err := validateRecordHeader(rec); err != nil {
				log.Printf("track: skipping backup %s: %v", id, err)
				continue
			}
			infos = append(infos, BackupInfo{
				SessionID:   rec.SessionID,
				Association: rec.Association,
				SavedAt:     rec.SavedAt,
			})
			continue
		}
		if err := validateRecord(rec); err != nil {
			log.Printf("track: skipping backup %s: %v", id, err)
			continue
		}
		infos = append(infos, BackupInfo{
			SessionID:   rec.SessionID,
			Association: rec.Association,
			PointCount:  len(rec.Points),
			SavedAt:     rec.SavedAt,
		})
	}
	return infos, nil
}

// Recover reconstructs a live session from its backup record. The session
// comes back paused, so the caller must explicitly Resume before new samples
// are accepted. Stats are recomputed in full from the restored points;
// running totals saved before the crash are never trusted.
func (e *Engine) Recover(ctx context.Context, sessionID string) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && !e.sess.session.Status.Terminal() {
		return Session{}, ErrSessionAlreadyActive
	}

	rec, ok, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNoBackup
	}
	if err := validateRecord(rec); err != nil {
		return Session{}, err
	}

	buf := newBuffer()
	buf.Restore(rec.Points)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.sess = &active{
		session: Session{
			ID:          rec.SessionID,
			RemoteID:    rec.RemoteID,
			Status:      StatusPaused,
			Activity:    rec.Activity,
			Association: rec.Association,
			StartedAt:   rec.StartedAt,
		},
		fsm:         &machine{status: StatusPaused},
		buf:         buf,
		pendingFrom: rec.PendingFrom,
		activeAccum: time.Duration(buf.Stats().DurationSec * float64(time.Second)),
		cancelLoop:  cancel,
	}
	go e.flushLoop(loopCtx)

	e.notifyLocked(StatusIdle, StatusPaused)
	return e.sess.session, nil
}

// Dismiss clears a backup record without recovering it. Irreversible.
func (e *Engine) Dismiss(ctx context.Context, sessionID string) error {
	_, ok, err := e.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrRecoveryCorrupt) {
		return err
	}
	if !ok {
		return ErrNoBackup
	}
	return e.store.Clear(ctx, sessionID)
}

// validateRecord guards recovery against partial or foreign writes. A bad
// record yields ErrRecoveryCorrupt rather than a crash.
func validateRecord(rec BackupRecord) error {
	if err := validateRecordHeader(rec); err != nil {
		return err
	}
	if len(rec.Points) == 0 {
		return ErrRecoveryCorrupt
	}
	first, last := rec.Points[0].Sequence, rec.Points[len(rec.Points)-1].Sequence
	for i, p := range rec.Points {
		if p.Sequence != first+int64(i) {
			return ErrRecoveryCorrupt
		}
		if !validCoords(p.Lat, p.Lng) {
			return ErrRecoveryCorrupt
		}
		if i > 0 && !p.CapturedAt.After(rec.Points[i-1].CapturedAt) {
			return ErrRecoveryCorrupt
		}
	}
	if rec.PendingFrom < first || rec.PendingFrom > last+1 {
		return ErrRecoveryCorrupt
	}
	return nil
}

func validateRecordHeader(rec BackupRecord) error {
	if rec.Version != BackupRecordVersion || rec.SessionID == "" {
		return ErrRecoveryCorrupt
	}
	if !rec.Association.Valid() {
		return ErrRecoveryCorrupt
	}
	return nil
}
