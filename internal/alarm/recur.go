package alarm

import "time"

// NextOccurrence advances last by whole periods of kind until the result is
// strictly after now. Periods that fell entirely in the past are skipped,
// never queued for back-fill.
//
// Daily and weekly steps are fixed 24h/168h offsets. Monthly and yearly
// steps increment the calendar field and clamp a nonexistent day-of-month to
// the last day of the target month, so "Jan 31, monthly" fires on Feb 28 (or
// 29) and then Mar 31 again.
//
// Calling with kind == None returns last unchanged; callers filter
// non-recurring events before asking for a next occurrence.
func NextOccurrence(last time.Time, kind Recurrence, now time.Time) time.Time {
	t := last
	for !t.After(now) {
		switch kind {
		case Daily:
			t = t.Add(24 * time.Hour)
		case Weekly:
			t = t.Add(7 * 24 * time.Hour)
		case Monthly:
			t = addMonth(t)
		case Yearly:
			t = addYear(t)
		default:
			return t
		}
	}
	return t
}

func addMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	m++
	if m > time.December {
		m = time.January
		y++
	}
	return clampedDate(y, m, d, t)
}

func addYear(t time.Time) time.Time {
	y, m, d := t.Date()
	return clampedDate(y+1, m, d, t)
}

func clampedDate(y int, m time.Month, d int, src time.Time) time.Time {
	if last := daysIn(y, m); d > last {
		d = last
	}
	h, min, sec := src.Clock()
	return time.Date(y, m, d, h, min, sec, src.Nanosecond(), src.Location())
}

func daysIn(y int, m time.Month) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
