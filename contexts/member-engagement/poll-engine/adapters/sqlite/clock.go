package sqliteadapter

import "time"

// SystemClock reads the wall clock in UTC. Stored times are truncated to
// nanoseconds since the epoch, so nothing finer is lost.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
