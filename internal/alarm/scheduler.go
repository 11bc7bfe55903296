package alarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"alarmd/pkg/logx"
)

const updateTimeout = 5 * time.Second

// Scheduler owns the pending-event queue and the background worker that
// fires events when they come due.
type Scheduler struct {
	gw    Gateway
	clock Clock
	sink  NotificationSink
	log   logx.Logger

	mu    sync.Mutex
	queue eventQueue

	wake     chan struct{} // nudges the worker to re-evaluate its deadline
	stop     chan struct{} // closed by Shutdown
	done     chan struct{} // closed when the worker has exited
	stopOnce sync.Once
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithClock substitutes the time source. Tests use this for determinism.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithSink sets the notification sink invoked once per due event.
func WithSink(sink NotificationSink) Option { return func(s *Scheduler) { s.sink = sink } }

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

// New loads all persisted alarms through gw and starts the worker. Recurring
// alarms whose stored fire time has passed are advanced to their next future
// occurrence; non-recurring alarms already in the past are not scheduled. A
// load failure is fatal: no scheduler is produced.
func New(ctx context.Context, gw Gateway, opts ...Option) (*Scheduler, error) {
	if gw == nil {
		return nil, errors.New("alarm: nil gateway")
	}
	s := &Scheduler{
		gw:    gw,
		clock: systemClock{},
		sink:  nopSink{},
		log:   logx.Nop(),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("load alarms: %w", err)
	}
	go s.run()
	return s, nil
}

func (s *Scheduler) load(ctx context.Context) error {
	recs, err := s.gw.LoadAll(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		at, err := ParseFireTime(r.FireAt)
		if err != nil {
			s.log.Warn("skipping alarm with unparseable fire time",
				logx.Int64("id", r.ID), logx.String("fire_at", r.FireAt), logx.Err(err))
			continue
		}
		if !r.Recurrence.Valid() {
			// A corrupt row would otherwise re-arm at its own past fire time
			// and spin the worker.
			s.log.Warn("skipping alarm with invalid recurrence",
				logx.Int64("id", r.ID), logx.Int("recurrence", int(r.Recurrence)))
			continue
		}
		ev := Event{ID: r.ID, Description: r.Description, FireAt: at, Recurrence: r.Recurrence}
		switch {
		case ev.Recurrence != None:
			if !ev.FireAt.After(now) {
				ev.FireAt = NextOccurrence(ev.FireAt, ev.Recurrence, now)
			}
			s.queue.Insert(ev)
		case ev.FireAt.After(now):
			s.queue.Insert(ev)
		}
	}
	s.log.Info("alarms loaded", logx.Int("pending", s.queue.Len()), logx.Int("stored", len(recs)))
	return nil
}

// Add validates the input, persists the alarm and schedules it. On any error
// no in-memory state changes: a rejected Add leaves no ghost event.
func (s *Scheduler) Add(ctx context.Context, description, fireAt string, kind Recurrence) (Event, error) {
	select {
	case <-s.stop:
		return Event{}, ErrStopped
	default:
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return Event{}, fmt.Errorf("%w: empty description", ErrInvalidInput)
	}
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: unknown recurrence %d", ErrInvalidInput, kind)
	}
	at, err := ParseFireTime(fireAt)
	if err != nil {
		return Event{}, fmt.Errorf("%w: fire time %q: %v", ErrInvalidInput, fireAt, err)
	}

	// Persist before touching the queue so the gateway stays the source of
	// truth and a storage failure leaves no in-memory state.
	id, err := s.gw.CreateAlarm(ctx, description, FormatFireTime(at), kind)
	if err != nil {
		return Event{}, fmt.Errorf("persist alarm: %w", err)
	}
	ev := Event{ID: id, Description: description, FireAt: at, Recurrence: kind}

	s.mu.Lock()
	s.queue.Insert(ev)
	s.mu.Unlock()
	s.nudge()

	s.log.Info("alarm added", logx.Int64("id", ev.ID),
		logx.Time("fire_at", ev.FireAt), logx.String("recurrence", kind.String()))
	return ev, nil
}

// List returns a snapshot of pending events ascending by fire time.
// Recurring events carry their recurrence label in the description. List
// never blocks on the worker or on I/O.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	events := s.queue.Snapshot()
	s.mu.Unlock()

	entries := make([]Entry, 0, len(events))
	for _, ev := range events {
		desc := ev.Description
		if ev.Recurrence != None {
			desc += " (" + ev.Recurrence.String() + ")"
		}
		entries = append(entries, Entry{
			ID:          ev.ID,
			Description: desc,
			FireAt:      ev.FireAt,
			Recurrence:  ev.Recurrence,
		})
	}
	return entries
}

// Pending reports the number of scheduled events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Shutdown stops the worker and waits for it to exit. Idempotent; events
// already mid-fire complete, nothing fires afterwards.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default: // a wake is already pending
	}
}

// run is the worker loop: sleep until the earliest deadline (or forever when
// the queue is empty), fire what is due, repeat. A nudge from Add interrupts
// the sleep so a sooner deadline takes effect immediately.
func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		next, ok := s.queue.PeekEarliest()
		s.mu.Unlock()

		var timerC <-chan time.Time
		if ok {
			wait := next.FireAt.Sub(s.clock.Now())
			if wait <= 0 {
				s.fireDue()
				continue
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-s.stop:
			return
		case <-s.wake:
			timer.Stop()
		case <-timerC:
		}
	}
}

// fireDue pops every event with fireAt <= now and fires it. The lock is not
// held across sink or gateway calls, so Add and List stay responsive while
// notifications go out.
func (s *Scheduler) fireDue() {
	now := s.clock.Now()

	var due []Event
	s.mu.Lock()
	for {
		next, ok := s.queue.PeekEarliest()
		if !ok || next.FireAt.After(now) {
			break
		}
		ev, err := s.queue.PopEarliest()
		if err != nil {
			// Unreachable after a successful peek.
			s.log.Error("queue invariant violated", logx.Err(err))
			break
		}
		due = append(due, ev)
	}
	s.mu.Unlock()

	for _, ev := range due {
		s.fire(ev)
		if ev.Recurrence == None {
			continue
		}

		next := NextOccurrence(ev.FireAt, ev.Recurrence, now)
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		err := s.gw.UpdateFireTime(ctx, ev.ID, FormatFireTime(next))
		cancel()
		if err != nil {
			// The reminder still advances in memory; the stored row stays
			// stale until the next successful update.
			s.log.Error("persisting recurring fire time failed",
				logx.Int64("id", ev.ID), logx.Time("next", next), logx.Err(err))
		}

		ev.FireAt = next
		s.mu.Lock()
		s.queue.Insert(ev)
		s.mu.Unlock()
	}
}

func (s *Scheduler) fire(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notification sink panicked",
				logx.Int64("id", ev.ID), logx.Any("panic", r))
		}
	}()
	s.sink.OnFire(ev)
	s.log.Info("alarm fired", logx.Int64("id", ev.ID),
		logx.String("description", ev.Description), logx.Time("at", ev.FireAt))
}
