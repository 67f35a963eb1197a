// Package clock isolates wall-clock reads and sleeps behind an interface
// so the scheduler's deadline and backoff logic can be driven by a fake
// clock in tests instead of real time.
package clock

import "time"

// Clock is the minimal seam the orchestrator needs for deadlines,
// backoff delays, and idle yields.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real is a Clock backed by the standard library.
type Real struct{}

// New returns the real, wall-clock-backed Clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time                       { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) Sleep(d time.Duration)                { time.Sleep(d) }
