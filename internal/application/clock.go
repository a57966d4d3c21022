package application

import "time"

// Clock schedules the supervisor's reconnect and poll delays.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
