package rtc

import (
	"fmt"
	"time"
)

// SetFunc sets the system clock.
type SetFunc func(time.Time) error

// Sync reads clk and hands the result to set. It returns the time read, which
// callers record as the last RTC update.
func Sync(clk Clock, set SetFunc) (time.Time, error) {
	t, err := clk.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("sync system time: %w", err)
	}
	if err := set(t); err != nil {
		return t, fmt.Errorf("sync system time: %w", err)
	}
	return t, nil
}
