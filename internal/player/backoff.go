package player

import "time"

// Timing controls the poll cadence and reconnect backoff of a device.
type Timing struct {
	PollInterval time.Duration
	BackoffUnit  time.Duration
	BackoffMax   time.Duration
	MinDelay     time.Duration
}

// DefaultTiming polls every second and backs off in 2s steps up to 30s.
func DefaultTiming() Timing {
	return Timing{
		PollInterval: time.Second,
		BackoffUnit:  2 * time.Second,
		BackoffMax:   30 * time.Second,
		MinDelay:     100 * time.Millisecond,
	}
}

// RetryDelay returns how long to wait before attempt, given that the failed
// request already took elapsed. The result is never below MinDelay.
func (t Timing) RetryDelay(attempt int, elapsed time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := t.BackoffMax
	if attempt <= int(t.BackoffMax/t.BackoffUnit) {
		delay = time.Duration(attempt) * t.BackoffUnit
	}
	delay -= elapsed
	if delay < t.MinDelay {
		return t.MinDelay
	}
	return delay
}
