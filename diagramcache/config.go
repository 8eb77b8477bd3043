package diagramcache

import "time"

// Config carries the tunables from the original project's environment
// variables (DIAGRAM_CACHE_TTL, DIAGRAM_SYNC_INTERVAL,
// DIAGRAM_SYNC_BATCH_SIZE, DIAGRAM_MAX_PER_USER,
// DIAGRAM_MAX_SPEC_SIZE_KB), preserved exactly as defaults (§4.8).
type Config struct {
	CacheTTL      time.Duration
	SyncInterval  time.Duration
	SyncBatchSize int
	MaxPerUser    int
	MaxSpecSizeKB int
}

// DefaultConfig matches the original deployment's defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:      7 * 24 * time.Hour,
		SyncInterval:  300 * time.Second,
		SyncBatchSize: 100,
		MaxPerUser:    20,
		MaxSpecSizeKB: 500,
	}
}
