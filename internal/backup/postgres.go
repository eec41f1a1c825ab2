package backup

import (
	"context"
	"encoding/json"
	"errors"

	"backend-parklookup/internal/db"
	"backend-parklookup/internal/track"

	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps one row per session in track_backups:
//
//	CREATE TABLE track_backups (
//	    session_id TEXT PRIMARY KEY,
//	    record     JSONB NOT NULL,
//	    saved_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Save(ctx context.Context, rec track.BackupRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO track_backups (session_id, record, saved_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (session_id) DO UPDATE SET record=$2, saved_at=$3
	`, rec.SessionID, payload, rec.SavedAt)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (track.BackupRecord, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT record FROM track_backups WHERE session_id=$1
	`, sessionID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return track.BackupRecord{}, false, nil
		}
		return track.BackupRecord{}, false, err
	}

	var rec track.BackupRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return track.BackupRecord{}, true, track.ErrRecoveryCorrupt
	}
	return rec, true, nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM track_backups WHERE session_id=$1`, sessionID)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT session_id FROM track_backups ORDER BY saved_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
