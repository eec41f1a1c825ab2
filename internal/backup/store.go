// Package backup provides durable key-value stores for crash-recovery
// snapshots of the live tracking session. Backends share the semantics of
// track.Store: the most recent successful Save must survive a process crash.
package backup

import (
	"fmt"

	"backend-parklookup/internal/config"
	"backend-parklookup/internal/db"
	"backend-parklookup/internal/track"

	"github.com/redis/go-redis/v9"
)

// New picks a backend from config. Postgres needs a live pool; redis needs a
// client; "memory" needs nothing and does not survive restarts, which makes
// it only suitable for tests and throwaway setups.
func New(cfg config.Config, querier db.Querier, rdb *redis.Client) (track.Store, error) {
	switch cfg.BackupBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("backup: redis backend requires REDIS_ADDR")
		}
		return NewRedisStore(rdb), nil
	case "postgres":
		if querier == nil {
			return nil, fmt.Errorf("backup: postgres backend requires POSTGRES_URL")
		}
		return NewPostgresStore(querier), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("backup: unknown backend %q", cfg.BackupBackend)
	}
}
