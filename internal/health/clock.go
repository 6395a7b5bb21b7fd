package health

import "time"

// Clock abstracts time for the scheduler so tests can drive ticks against
// a fake clock deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
