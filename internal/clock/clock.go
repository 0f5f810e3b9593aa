package clock

import "time"

// Clock supplies the current time. Every lead-time, booking-horizon and
// hold-expiry check in the engine goes through a Clock so tests can pin
// "now" instead of sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time { return f.t }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }
