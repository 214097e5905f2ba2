package gpio

import "sync"

// FakeIndicator is a test double that records every Set call.
type FakeIndicator struct {
	mu sync.Mutex

	// Values contains every value passed to Set, oldest first.
	Values []bool

	// SetError, if set, will be returned by Set()
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeIndicator creates a FakeIndicator.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records the value.
func (f *FakeIndicator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	return nil
}

// On reports the most recently set value.
func (f *FakeIndicator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return false
	}
	return f.Values[len(f.Values)-1]
}

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded values.
func (f *FakeIndicator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Values = nil
	f.Closed = false
	f.SetError = nil
}
