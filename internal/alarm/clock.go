package alarm

import "time"

// Clock supplies the current wall-clock time. Injectable for deterministic
// tests; production code uses the system clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
