package datalog

import (
	"sync"
	"time"

	"github.com/sweeney/vent-controller/internal/adc"
)

// FakeWriter records written samples for test assertions.
type FakeWriter struct {
	mu      sync.Mutex
	records []Record
	calls   int

	// WriteErrors, if non-nil at the index of a WriteData call, is returned
	// and the sample is not recorded.
	WriteErrors []error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeWriter creates a FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// WriteData records the sample unless a scripted error is due.
func (f *FakeWriter) WriteData(ts time.Time, values [adc.Channels]int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.WriteErrors) && f.WriteErrors[call] != nil {
		return f.WriteErrors[call]
	}
	f.records = append(f.records, Record{Timestamp: ts, Values: values})
	return nil
}

// Records returns a copy of the recorded samples.
func (f *FakeWriter) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// Calls returns the number of WriteData calls, including failed ones.
func (f *FakeWriter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
