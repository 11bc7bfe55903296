package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeGateway struct {
	mu        sync.Mutex
	nextID    int64
	rows      []Record
	creates   int
	updates   []Record
	loadErr   error
	createErr error
	updateErr error
}

func (g *fakeGateway) CreateAlarm(_ context.Context, description, fireAt string, kind Recurrence) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	if g.createErr != nil {
		return 0, g.createErr
	}
	g.nextID++
	g.rows = append(g.rows, Record{ID: g.nextID, Description: description, FireAt: fireAt, Recurrence: kind})
	return g.nextID, nil
}

func (g *fakeGateway) LoadAll(context.Context) ([]Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	return append([]Record(nil), g.rows...), nil
}

func (g *fakeGateway) UpdateFireTime(_ context.Context, id int64, fireAt string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, Record{ID: id, FireAt: fireAt})
	return g.updateErr
}

func (g *fakeGateway) updateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.updates)
}

type chanSink chan Event

func (s chanSink) OnFire(ev Event) { s <- ev }

func waitFired(t *testing.T, sink chanSink) Event {
	t.Helper()
	select {
	case ev := <-sink:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a firing")
		return Event{}
	}
}

func assertSilent(t *testing.T, sink chanSink, d time.Duration) {
	t.Helper()
	select {
	case ev := <-sink:
		t.Fatalf("unexpected firing: %+v", ev)
	case <-time.After(d):
	}
}

func newTestScheduler(t *testing.T, gw *fakeGateway, clk Clock, sink NotificationSink) *Scheduler {
	t.Helper()
	opts := []Option{WithClock(clk)}
	if sink != nil {
		opts = append(opts, WithSink(sink))
	}
	s, err := New(context.Background(), gw, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

var testBase = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

func TestAddAndListOrdering(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)

	add := func(desc string, at time.Time, kind Recurrence) {
		t.Helper()
		if _, err := s.Add(context.Background(), desc, FormatFireTime(at), kind); err != nil {
			t.Fatalf("Add(%s): %v", desc, err)
		}
	}
	add("third", testBase.Add(3*time.Hour), None)
	add("first", testBase.Add(1*time.Hour), Daily)
	add("second", testBase.Add(2*time.Hour), None)

	got := s.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Description != "first (Daily)" {
		t.Fatalf("expected recurrence label, got %q", got[0].Description)
	}
	if got[1].Description != "second" || got[2].Description != "third" {
		t.Fatalf("unexpected order: %q, %q", got[1].Description, got[2].Description)
	}
	for i := 1; i < len(got); i++ {
		if got[i].FireAt.Before(got[i-1].FireAt) {
			t.Fatalf("list not ascending at index %d", i)
		}
	}
}

func TestListIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)
	if _, err := s.Add(context.Background(), "a", FormatFireTime(testBase.Add(time.Hour)), None); err != nil {
		t.Fatalf("Add: %v", err)
	}

	first, second := s.List(), s.List()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entries differ at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAddValidation(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)

	cases := []struct {
		name, desc, fireAt string
		kind               Recurrence
	}{
		{"empty description", "  ", "2024-06-01 09:00", None},
		{"bad fire time", "x", "not-a-time", None},
		{"unknown recurrence", "x", "2024-06-01 09:00", Recurrence(99)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Add(context.Background(), tc.desc, tc.fireAt, tc.kind)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if gw.creates != 0 {
		t.Fatalf("gateway called %d times for rejected input", gw.creates)
	}
	if len(s.List()) != 0 {
		t.Fatal("rejected Add left a ghost event")
	}
}

func TestAddPersistenceFailure(t *testing.T) {
	gw := &fakeGateway{createErr: errors.New("disk full")}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)

	_, err := s.Add(context.Background(), "x", FormatFireTime(testBase.Add(time.Hour)), None)
	if err == nil || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatal("failed Add left a ghost event")
	}
}

func TestLoadFiltersAndAdvances(t *testing.T) {
	gw := &fakeGateway{
		nextID: 4,
		rows: []Record{
			{ID: 1, Description: "stale", FireAt: FormatFireTime(testBase.Add(-2 * time.Hour)), Recurrence: None},
			{ID: 2, Description: "standup", FireAt: FormatFireTime(testBase.Add(-30 * time.Hour)), Recurrence: Daily},
			{ID: 3, Description: "dentist", FireAt: FormatFireTime(testBase.Add(2 * time.Hour)), Recurrence: None},
			{ID: 4, Description: "garbled", FireAt: "yesterday-ish", Recurrence: None},
		},
	}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 pending events, got %d: %+v", len(got), got)
	}
	if got[0].ID != 3 || got[1].ID != 2 {
		t.Fatalf("unexpected events: %+v", got)
	}
	// The recurring alarm was 30h overdue; the next daily slot is 18h ahead.
	if want := testBase.Add(18 * time.Hour); !got[1].FireAt.Equal(want) {
		t.Fatalf("recurring alarm not advanced: got %s, want %s",
			got[1].FireAt.Format(TimeLayout), want.Format(TimeLayout))
	}
}

func TestLoadSkipsInvalidRecurrence(t *testing.T) {
	gw := &fakeGateway{
		nextID: 2,
		rows: []Record{
			{ID: 1, Description: "corrupt", FireAt: FormatFireTime(testBase.Add(-time.Hour)), Recurrence: Recurrence(7)},
			{ID: 2, Description: "dentist", FireAt: FormatFireTime(testBase.Add(2 * time.Hour)), Recurrence: None},
		},
	}
	sink := make(chanSink, 16)
	s := newTestScheduler(t, gw, newFakeClock(testBase), sink)

	got := s.List()
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected only the valid row pending, got %+v", got)
	}
	// The corrupt row is already past due; if it had been scheduled it would
	// fire and persist updates in a tight loop.
	assertSilent(t, sink, 200*time.Millisecond)
	if n := gw.updateCount(); n != 0 {
		t.Fatalf("corrupt row persisted %d fire-time updates", n)
	}

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung with a corrupt row in storage")
	}
}

func TestLoadFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{loadErr: errors.New("db locked")}
	if _, err := New(context.Background(), gw, WithClock(newFakeClock(testBase))); err == nil {
		t.Fatal("expected construction to fail on load error")
	}
}

func TestFireNonRecurringOnce(t *testing.T) {
	gw := &fakeGateway{}
	clk := newFakeClock(testBase)
	sink := make(chanSink, 16)
	s := newTestScheduler(t, gw, clk, sink)

	if _, err := s.Add(context.Background(), "ping", FormatFireTime(testBase.Add(time.Hour)), None); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clk.Set(testBase.Add(2 * time.Hour))
	s.nudge()

	ev := waitFired(t, sink)
	if ev.Description != "ping" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if n := len(s.List()); n != 0 {
		t.Fatalf("non-recurring event still listed after firing: %d", n)
	}

	// It must never refire.
	clk.Set(testBase.Add(3 * time.Hour))
	s.nudge()
	assertSilent(t, sink, 150*time.Millisecond)
	if gw.updateCount() != 0 {
		t.Fatal("non-recurring firing must not persist a fire-time update")
	}
}

func TestFireRecurringAdvancesAndPersists(t *testing.T) {
	gw := &fakeGateway{}
	clk := newFakeClock(testBase)
	sink := make(chanSink, 16)
	s := newTestScheduler(t, gw, clk, sink)

	at := testBase.Add(time.Hour)
	if _, err := s.Add(context.Background(), "standup", FormatFireTime(at), Daily); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clk.Set(at)
	s.nudge()
	waitFired(t, sink)

	want := at.Add(24 * time.Hour)
	deadline := time.Now().Add(2 * time.Second)
	for gw.updateCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	gw.mu.Lock()
	updates := append([]Record(nil), gw.updates...)
	gw.mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("expected 1 fire-time update, got %d", len(updates))
	}
	if updates[0].FireAt != FormatFireTime(want) {
		t.Fatalf("persisted %q, want %q", updates[0].FireAt, FormatFireTime(want))
	}

	got := s.List()
	if len(got) != 1 || !got[0].FireAt.Equal(want) {
		t.Fatalf("recurring event not re-armed at %s: %+v", want.Format(TimeLayout), got)
	}
}

func TestRecurringUpdateFailureStillRearms(t *testing.T) {
	gw := &fakeGateway{updateErr: errors.New("db locked")}
	clk := newFakeClock(testBase)
	sink := make(chanSink, 16)
	s := newTestScheduler(t, gw, clk, sink)

	at := testBase.Add(time.Hour)
	if _, err := s.Add(context.Background(), "rent", FormatFireTime(at), Monthly); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clk.Set(at.Add(time.Minute))
	s.nudge()
	waitFired(t, sink)

	want := NextOccurrence(at, Monthly, at.Add(time.Minute))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := s.List()
		if len(got) == 1 && got[0].FireAt.Equal(want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event not re-armed in memory after persistence failure: %+v", s.List())
}

func TestSinkPanicContained(t *testing.T) {
	gw := &fakeGateway{}
	clk := newFakeClock(testBase)
	fired := make(chan int64, 16)
	sink := panicSink{fired: fired}
	s := newTestScheduler(t, gw, clk, sink)

	if _, err := s.Add(context.Background(), "boom", FormatFireTime(testBase.Add(time.Hour)), None); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(context.Background(), "after", FormatFireTime(testBase.Add(time.Hour)), None); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clk.Set(testBase.Add(2 * time.Hour))
	s.nudge()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not survive the sink panic")
		}
	}
	if n := len(s.List()); n != 0 {
		t.Fatalf("%d events left after firing", n)
	}
}

type panicSink struct{ fired chan int64 }

func (p panicSink) OnFire(ev Event) {
	p.fired <- ev.ID
	panic("sink failure")
}

func TestConcurrentAdds(t *testing.T) {
	const callers, perCaller = 10, 100
	gw := &fakeGateway{}
	s := newTestScheduler(t, gw, newFakeClock(testBase), nil)

	var wg sync.WaitGroup
	errs := make(chan error, callers*perCaller)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perCaller; i++ {
				at := testBase.Add(time.Duration(c*perCaller+i+1) * time.Minute)
				desc := fmt.Sprintf("ev-%d-%d", c, i)
				if _, err := s.Add(context.Background(), desc, FormatFireTime(at), None); err != nil {
					errs <- err
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Add failed: %v", err)
	}

	got := s.List()
	if len(got) != callers*perCaller {
		t.Fatalf("expected %d events, got %d", callers*perCaller, len(got))
	}
	seen := make(map[int64]bool, len(got))
	for i, e := range got {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
		if i > 0 && got[i].FireAt.Before(got[i-1].FireAt) {
			t.Fatalf("list not ascending at index %d", i)
		}
	}
}

func TestShutdown(t *testing.T) {
	gw := &fakeGateway{}
	clk := newFakeClock(testBase)
	sink := make(chanSink, 16)
	s := newTestScheduler(t, gw, clk, sink)

	if _, err := s.Add(context.Background(), "far", FormatFireTime(testBase.Add(48*time.Hour)), None); err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		s.Shutdown() // idempotent
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return promptly while armed")
	}

	if _, err := s.Add(context.Background(), "late", FormatFireTime(testBase.Add(time.Hour)), None); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after shutdown, got %v", err)
	}

	// Even with the deadline long past, nothing fires after shutdown.
	clk.Set(testBase.Add(72 * time.Hour))
	s.nudge()
	assertSilent(t, sink, 150*time.Millisecond)
}
