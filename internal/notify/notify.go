// Package notify delivers fired alarms to the user. Sinks implement
// alarm.NotificationSink; delivery failures are logged and never propagate
// back into the scheduler.
package notify

import (
	"fmt"

	"alarmd/internal/alarm"
	"alarmd/pkg/logx"
)

// LogSink surfaces alarms on the process log. Always on; it is the fallback
// channel when no other sink is configured.
type LogSink struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) OnFire(ev alarm.Event) {
	s.log.Info("ALARM", logx.Int64("id", ev.ID),
		logx.String("description", ev.Description),
		logx.String("recurrence", ev.Recurrence.String()))
}

// Multi fans a firing out to every sink in order.
func Multi(sinks ...alarm.NotificationSink) alarm.NotificationSink {
	return multiSink(sinks)
}

type multiSink []alarm.NotificationSink

func (m multiSink) OnFire(ev alarm.Event) {
	for _, s := range m {
		s.OnFire(ev)
	}
}

// Message renders the user-facing notification text for an alarm.
func Message(ev alarm.Event) string {
	text := fmt.Sprintf("⏰ %s — %s", ev.Description, alarm.FormatFireTime(ev.FireAt))
	if ev.Recurrence != alarm.None {
		text += " (" + ev.Recurrence.String() + ")"
	}
	return text
}
