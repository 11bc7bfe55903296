// Package storage persists alarms in a local SQLite database. It implements
// the scheduler's Gateway interface and adds the prune operation used by the
// maintenance janitor.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"alarmd/internal/alarm"
	"alarmd/pkg/logx"
)

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API consumed by the scheduler and the janitor.
type Store interface {
	alarm.Gateway

	// PruneExpired deletes non-recurring alarms whose fire time is before
	// the given cutoff (alarm.TimeLayout text). Returns the number of rows
	// removed.
	PruneExpired(ctx context.Context, before string) (int64, error)

	Close() error
}

// Open initializes the store at cfg.Path, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
