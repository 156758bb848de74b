package game

import "time"

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred work. The registry only needs AfterFunc, which
// lets tests fire grace periods by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
