package alarm

import "context"

// Gateway is the durable storage the scheduler persists through. It is the
// source of truth across restarts; the in-memory queue is rebuilt from it on
// startup.
type Gateway interface {
	// CreateAlarm persists a new alarm and returns its assigned id.
	CreateAlarm(ctx context.Context, description, fireAt string, kind Recurrence) (int64, error)

	// LoadAll returns every persisted alarm. Called once at startup.
	LoadAll(ctx context.Context) ([]Record, error)

	// UpdateFireTime stores the recomputed fire time of a recurring alarm
	// after it fired.
	UpdateFireTime(ctx context.Context, id int64, fireAt string) error
}

// Record is one persisted alarm row. FireAt is in TimeLayout form; rows that
// fail to parse are skipped at load with a warning.
type Record struct {
	ID          int64
	Description string
	FireAt      string
	Recurrence  Recurrence
}

// NotificationSink receives each alarm exactly once when it comes due. Sink
// failures (including panics) are contained and never stop the scheduler.
type NotificationSink interface {
	OnFire(ev Event)
}

type nopSink struct{}

func (nopSink) OnFire(Event) {}
