// Package store persists opaque runtime snapshots: flat string-keyed maps
// of primitive values handed over at background/terminate transitions and
// read back on foreground. Unknown keys are ignored on load; missing keys
// fall back to defaults at the consumer.
package store

import (
	"context"
	"fmt"
	"strings"

	"resourceruntime/internal/config"
	"resourceruntime/internal/logger"
)

// SchemaVersionKey is the only structured key a snapshot is required to
// carry. Consumers ignore keys they do not know (forward compatibility).
const SchemaVersionKey = "schemaVersion"

// SchemaVersion is the snapshot format version written by this runtime.
const SchemaVersion = "1"

// Store persists and retrieves runtime snapshots.
type Store interface {
	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snapshot map[string]string) error

	// Load returns the last saved snapshot, or (nil, nil) if none exists.
	Load(ctx context.Context) (map[string]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// NewStore creates a Store based on the configuration.
func NewStore(cfg config.StoreConfig, socksCfg config.SOCKSConfig) (Store, error) {
	log := logger.WithComponent("store-factory")

	storeType := strings.ToLower(cfg.Type)
	if storeType == "" {
		storeType = "file"
	}

	log.Info().Str("store_type", storeType).Msg("Creating snapshot store")

	switch storeType {
	case "redis":
		return NewRedisStore(cfg.Redis, socksCfg)
	case "file":
		return NewFileStore(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: redis, file)", storeType)
	}
}
