// Package alarm implements the in-process reminder engine.
//
// # Overview
//
// A Scheduler owns a mutex-guarded min-heap of pending events and one
// background worker. The worker sleeps until the earliest fire time, fires
// every event that has come due, and re-arms recurring events at their next
// occurrence. Callers interact through Add, List and Shutdown; all three are
// safe for concurrent use.
//
// # Recurrence
//
// Recurring events follow a catch-up-by-skipping policy: NextOccurrence
// advances period by period until it lands strictly after "now", so
// occurrences missed while the process was down are dropped rather than
// queued. Monthly and yearly steps clamp a nonexistent day-of-month to the
// last day of the target month (Jan 31 -> Feb 28/29).
//
// # Persistence
//
// Durable storage sits behind the Gateway interface. A failed create rejects
// the Add outright; a failed fire-time update after a recurring firing is
// logged and the event is still re-armed in memory, so reminders keep firing
// even when the database is transiently unavailable.
package alarm
