//go:build !linux

package adc

import "errors"

// RealSampler is not available on non-Linux platforms.
type RealSampler struct{}

// NewRealSampler returns an error on non-Linux platforms.
func NewRealSampler(opts Options) (*RealSampler, error) {
	return nil, errors.New("adc: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (s *RealSampler) Read() (Reading, error) {
	return Reading{}, errors.New("adc: not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *RealSampler) Close() error {
	return nil
}
