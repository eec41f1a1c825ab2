package backup

import (
	"context"
	"sync"

	"backend-parklookup/internal/track"
)

// MemoryStore keeps backup records in process memory. Used by tests and as
// a last-resort backend; it obviously cannot recover across restarts.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]track.BackupRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]track.BackupRecord{}}
}

func (s *MemoryStore) Save(_ context.Context, rec track.BackupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := rec
	copied.Points = append([]track.Point(nil), rec.Points...)
	s.records[rec.SessionID] = copied
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (track.BackupRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return track.BackupRecord{}, false, nil
	}
	copied := rec
	copied.Points = append([]track.Point(nil), rec.Points...)
	return copied, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}
