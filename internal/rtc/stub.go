//go:build !linux

package rtc

import (
	"errors"
	"time"
)

// DS3231 is a stub for non-Linux platforms.
type DS3231 struct{}

// Open returns an error on non-Linux platforms.
func Open(busName string) (*DS3231, error) {
	return nil, errors.New("rtc not supported on this platform")
}

func (d *DS3231) Now() (time.Time, error) {
	return time.Time{}, errors.New("not supported")
}

func (d *DS3231) Close() error {
	return nil
}

// SetSystemTime returns an error on non-Linux platforms.
func SetSystemTime(t time.Time) error {
	return errors.New("setting the system clock is not supported on this platform")
}
