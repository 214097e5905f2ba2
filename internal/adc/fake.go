package adc

import (
	"errors"
	"sync"
)

// FakeSampler is a test double that returns scripted readings.
// Safe for concurrent use so tests can poll it while a loop is running.
type FakeSampler struct {
	mu sync.Mutex

	// Readings contains scripted values to return.
	// Each call to Read() consumes the next reading.
	Readings []Reading

	// Errors, if non-nil at the index of a call, is returned instead of a reading.
	// The reading at that index is still consumed.
	Errors []error

	// ReadError, if set, will be returned by every Read()
	ReadError error

	calls int
	index int

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeSampler creates a FakeSampler with the given readings.
func NewFakeSampler(readings ...Reading) *FakeSampler {
	return &FakeSampler{Readings: readings}
}

// Read returns the next scripted reading.
// If readings are exhausted, returns the last reading repeatedly.
func (f *FakeSampler) Read() (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++

	if f.ReadError != nil {
		return Reading{}, f.ReadError
	}
	if len(f.Readings) == 0 {
		return Reading{}, errors.New("no readings configured")
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}

	if call < len(f.Errors) && f.Errors[call] != nil {
		return Reading{}, f.Errors[call]
	}
	return r, nil
}

// Calls returns the number of Read() invocations, including failed ones.
func (f *FakeSampler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
