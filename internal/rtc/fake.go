package rtc

import "time"

// FakeClock is a test double that returns a scripted time.
type FakeClock struct {
	Time   time.Time
	Err    error
	Closed bool
}

// Now returns the scripted time or error.
func (f *FakeClock) Now() (time.Time, error) {
	if f.Err != nil {
		return time.Time{}, f.Err
	}
	return f.Time, nil
}

// Close marks the clock as closed.
func (f *FakeClock) Close() error {
	f.Closed = true
	return nil
}
