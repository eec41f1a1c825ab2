package backup

import "backend-parklookup/internal/config"

func cfgWith(backend string) config.Config {
	return config.Config{BackupBackend: backend}
}
