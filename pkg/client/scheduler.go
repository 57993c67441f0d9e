package client

import "time"

// Timer is a pending scheduled function.
type Timer interface {
	// Stop prevents the function from running. It reports whether it did so.
	Stop() bool
}

// Scheduler runs functions after a delay. Tests substitute a manual scheduler
// so timeouts and reconnect delays run without real timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// SystemScheduler schedules with the runtime timer.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now implements Scheduler.
func (SystemScheduler) Now() time.Time {
	return time.Now()
}
