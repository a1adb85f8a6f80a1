// Package clock provides an injectable time source and the fixed-zone day
// stamping used by every day-scoped reset in the system
package clock

import "time"

// JST is the fixed day-boundary zone. Japan has no DST, so a fixed offset is
// exact and needs no tzdata at runtime
var JST = time.FixedZone("JST", 9*60*60)

// Clock is the injectable time source
type Clock interface {
	Now() time.Time
}

// System reads the wall clock
type System struct{}

// Now implements Clock
func (System) Now() time.Time { return time.Now() }

// Fixed is a test clock pinned to a settable instant
type Fixed struct{ T time.Time }

// Now implements Clock
func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward by d
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }

// DayStamp renders t as an explicit year-month-day string in loc.
// Both the credential rotator and the verification cache key their daily
// resets on this value, never on a locale-formatted date
func DayStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = JST
	}
	return t.In(loc).Format("2006-01-02")
}
