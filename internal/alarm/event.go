package alarm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Recurrence is an event's repetition policy. The numeric values are part of
// the storage format and must not be reordered.
type Recurrence int

const (
	None Recurrence = iota
	Daily
	Weekly
	Monthly
	Yearly
)

func (r Recurrence) Valid() bool { return r >= None && r <= Yearly }

func (r Recurrence) String() string {
	switch r {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	default:
		return "None"
	}
}

// ParseRecurrence accepts the label form ("Daily") and, for compatibility
// with older clients, the numeric form ("1").
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "0":
		return None, nil
	case "daily", "1":
		return Daily, nil
	case "weekly", "2":
		return Weekly, nil
	case "monthly", "3":
		return Monthly, nil
	case "yearly", "4":
		return Yearly, nil
	default:
		return None, fmt.Errorf("unknown recurrence %q", s)
	}
}

// TimeLayout is the wall-clock layout used for fire times at the API and
// storage boundaries.
const TimeLayout = "2006-01-02 15:04"

func ParseFireTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.Local)
}

func FormatFireTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Event is one pending reminder. ID and Description are immutable after
// creation; FireAt always holds the next upcoming occurrence.
type Event struct {
	ID          int64
	Description string
	FireAt      time.Time
	Recurrence  Recurrence
}

// Entry is one row of a List snapshot. Description carries the recurrence
// label for recurring events, e.g. "Pay rent (Monthly)".
type Entry struct {
	ID          int64
	Description string
	FireAt      time.Time
	Recurrence  Recurrence
}

var (
	// ErrInvalidInput marks a rejected Add: empty description, unparseable
	// fire time or unknown recurrence. Nothing is persisted in that case.
	ErrInvalidInput = errors.New("alarm: invalid input")

	// ErrStopped is returned by Add after Shutdown has begun.
	ErrStopped = errors.New("alarm: scheduler stopped")

	// ErrEmptyQueue signals a pop from an empty queue. The worker checks
	// emptiness before popping, so seeing this is a logic bug.
	ErrEmptyQueue = errors.New("alarm: pop from empty queue")
)
