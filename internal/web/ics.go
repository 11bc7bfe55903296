package web

import (
	"fmt"
	"net/http"

	ical "github.com/arran4/golang-ical"

	"alarmd/internal/alarm"
)

// handleICS exports the pending alarms as an iCalendar feed so they can be
// subscribed to from a regular calendar client. Recurring alarms carry an
// RRULE; the feed reflects the scheduler's current snapshot.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//alarmd//alarm feed//EN")

	for _, e := range s.sched.List() {
		ev := cal.AddEvent(fmt.Sprintf("alarmd-%d", e.ID))
		ev.SetSummary(e.Description)
		ev.SetStartAt(e.FireAt)
		ev.SetEndAt(e.FireAt)
		ev.SetDtStampTime(e.FireAt)
		if rule := rruleFor(e.Recurrence); rule != "" {
			ev.AddRrule(rule)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="alarms.ics"`)
	_, _ = w.Write([]byte(cal.Serialize()))
}

func rruleFor(r alarm.Recurrence) string {
	switch r {
	case alarm.Daily:
		return "FREQ=DAILY"
	case alarm.Weekly:
		return "FREQ=WEEKLY"
	case alarm.Monthly:
		return "FREQ=MONTHLY"
	case alarm.Yearly:
		return "FREQ=YEARLY"
	default:
		return ""
	}
}
