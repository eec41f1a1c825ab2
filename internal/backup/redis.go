package backup

import (
	"context"
	"encoding/json"
	"strings"

	"backend-parklookup/internal/track"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "track:backup:"

// RedisStore persists backup records as JSON values keyed by session id.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) Save(ctx context.Context, rec track.BackupRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(rec.SessionID), payload, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (track.BackupRecord, bool, error) {
	payload, err := s.client.Get(ctx, redisKey(sessionID)).Bytes()
	if err == redis.Nil {
		return track.BackupRecord{}, false, nil
	}
	if err != nil {
		return track.BackupRecord{}, false, err
	}

	var rec track.BackupRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		// An undecodable value is a corrupt record, not a store failure.
		return track.BackupRecord{}, true, track.ErrRecoveryCorrupt
	}
	return rec, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, redisKey(sessionID)).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
