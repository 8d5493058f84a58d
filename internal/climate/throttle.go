package climate

import "time"

// Alert types throttled independently per kennel.
const (
	AlertMotion      = "motion"
	AlertTemperature = "temperature"
	AlertHumidity    = "humidity"
)

// Throttle rate-limits alerts per (kennel, alert type).
type Throttle struct {
	cooldown time.Duration
	last     map[throttleKey]time.Time
}

type throttleKey struct {
	kennelID  int
	alertType string
}

// NewThrottle creates a throttle with the given cooldown.
func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{cooldown: cooldown, last: make(map[throttleKey]time.Time)}
}

// Allow reports whether an alert may fire now, and records it if so.
func (t *Throttle) Allow(kennelID int, alertType string, now time.Time) bool {
	key := throttleKey{kennelID: kennelID, alertType: alertType}
	if sent, ok := t.last[key]; ok && now.Sub(sent) < t.cooldown {
		return false
	}
	t.last[key] = now
	return true
}
