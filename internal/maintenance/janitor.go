// Package maintenance runs periodic housekeeping against the alarm store.
//
// The scheduler never deletes rows: a fired non-recurring alarm simply stops
// being loaded. Left alone the database grows without bound, so the janitor
// prunes those rows once they are older than the retention window.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"alarmd/internal/alarm"
	"alarmd/internal/storage"
	"alarmd/pkg/logx"
)

const pruneTimeout = 30 * time.Second

// Config controls the janitor.
type Config struct {
	// Schedule is a 5-field cron expression or descriptor ("@daily").
	Schedule string
	// Retention is how long fired non-recurring alarms are kept.
	Retention time.Duration
}

type Janitor struct {
	store storage.Store
	log   logx.Logger
	ret   time.Duration
	c     *cron.Cron
}

// New validates the schedule and prepares the janitor; Start begins the cron
// loop.
func New(cfg Config, store storage.Store, log logx.Logger) (*Janitor, error) {
	j := &Janitor{store: store, log: log, ret: cfg.Retention, c: cron.New()}
	if _, err := j.c.AddFunc(cfg.Schedule, j.prune); err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.c.Start()
	j.log.Info("janitor started", logx.Duration("retention", j.ret))
}

// Stop halts the cron loop and waits for an in-flight prune to finish.
func (j *Janitor) Stop() {
	<-j.c.Stop().Done()
}

func (j *Janitor) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()
	if err := j.PruneOnce(ctx, time.Now()); err != nil {
		j.log.Error("prune failed", logx.Err(err))
	}
}

// PruneOnce deletes fired non-recurring alarms older than the retention
// window relative to now.
func (j *Janitor) PruneOnce(ctx context.Context, now time.Time) error {
	cutoff := alarm.FormatFireTime(now.Add(-j.ret))
	n, err := j.store.PruneExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info("pruned expired alarms", logx.Int64("removed", n), logx.String("cutoff", cutoff))
	}
	return nil
}
