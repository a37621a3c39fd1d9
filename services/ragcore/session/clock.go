package session

import "time"

// Clock abstracts time.Now, adapted from the teacher's ttl.ClockChecker
// pattern. A Store keeps the Clock it is given, but no timestamp is read
// from it: the Workflow Engine stamps started_at and transition timestamps
// with time.Now().
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
