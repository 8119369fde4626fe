package processor

import "time"

// MaxAttempts bounds retries of one scheduled action.
const MaxAttempts = 5

const maxBackoffMinutes = 30

// Backoff maps an action's current attempt count to its retry decision.
// The returned delay doubles per attempt and caps at thirty minutes;
// terminal is true when the incremented attempt count exhausts MaxAttempts.
func Backoff(attempts int) (time.Duration, bool) {
	if attempts+1 >= MaxAttempts {
		return 0, true
	}
	minutes := 1 << (attempts + 1)
	if minutes > maxBackoffMinutes {
		minutes = maxBackoffMinutes
	}
	return time.Duration(minutes) * time.Minute, false
}
