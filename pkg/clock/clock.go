package clock

import "time"

// Clock abstracts the current time so window checks can be tested deterministically
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now in UTC
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant
func (f *Fixed) Now() time.Time {
	return f.At
}

// Advance moves the fixed clock forward
func (f *Fixed) Advance(d time.Duration) {
	f.At = f.At.Add(d)
}
