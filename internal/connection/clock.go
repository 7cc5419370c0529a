// ABOUTME: Timer scheduling seam so reconnection delays can run on simulated time.
// ABOUTME: SystemClock is backed by time.AfterFunc.

package connection

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. Returns false if it already
	// ran or was already stopped.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock schedules on the wall clock.
var SystemClock Clock = systemClock{}
