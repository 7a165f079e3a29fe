package watcher

import "time"

// AlertState is a room's alert debounce. A room is Alerting from the moment an alert
// fires until Cooldown has elapsed, and Idle otherwise.
type AlertState struct {
	Cooldown    time.Duration
	LastAlertAt time.Time // zero until the first alert fires
}

// Alerting reports whether the room is still inside the cooldown at now
func (s AlertState) Alerting(now time.Time) bool {
	return !s.LastAlertAt.IsZero() && now.Sub(s.LastAlertAt) < s.Cooldown
}

// CooldownRemaining returns how long until the room is Idle again
func (s AlertState) CooldownRemaining(now time.Time) time.Duration {
	if !s.Alerting(now) {
		return 0
	}
	return s.Cooldown - now.Sub(s.LastAlertAt)
}

// Evaluate applies one verdict. It fires only when shouldAlert is set and the room is Idle,
// in which case the returned state restarts the cooldown at now.
func (s AlertState) Evaluate(shouldAlert bool, now time.Time) (AlertState, bool) {
	if !shouldAlert || s.Alerting(now) {
		return s, false
	}
	s.LastAlertAt = now
	return s, true
}
