package client

import "time"

// Default reconnect policy
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// Backoff is a linear reconnect policy: attempt n waits BaseDelay*n, and no
// attempt is made past MaxAttempts.
type Backoff struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the default reconnect policy.
func DefaultBackoff() Backoff {
	return Backoff{BaseDelay: DefaultBaseDelay, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns the wait before the given 1-based attempt. ok is false once
// the attempt exceeds MaxAttempts.
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > b.MaxAttempts {
		return 0, false
	}
	return b.BaseDelay * time.Duration(attempt), true
}
