// Package datalog persists sensor samples.
package datalog

import (
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/vent-controller/internal/adc"
)

// Writer appends one timestamped sample to durable storage.
type Writer interface {
	// WriteData persists the raw channel values captured at ts.
	WriteData(ts time.Time, values [adc.Channels]int32) error

	// Close flushes and releases the underlying storage.
	Close() error
}

// Record is one persisted sample.
type Record struct {
	Timestamp time.Time
	Values    [adc.Channels]int32
}

// Multi writes every sample to all of its writers. Every writer is attempted
// even when an earlier one fails; the errors are combined.
type Multi []Writer

// WriteData writes to every writer.
func (m Multi) WriteData(ts time.Time, values [adc.Channels]int32) error {
	var errs error
	for _, w := range m {
		errs = multierr.Append(errs, w.WriteData(ts, values))
	}
	return errs
}

// Close closes every writer.
func (m Multi) Close() error {
	var errs error
	for _, w := range m {
		errs = multierr.Append(errs, w.Close())
	}
	return errs
}
