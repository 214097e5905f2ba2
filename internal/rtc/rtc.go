// Package rtc reads the DS3231 real-time clock and sets the system clock
// from it at startup, so samples carry a sane timestamp after a cold boot
// without network time.
package rtc

import (
	"errors"
	"fmt"
	"time"
)

// Address is the fixed I2C address of the DS3231.
const Address = 0x68

// registerCount is the number of time registers, 0x00 (seconds) to 0x06 (year).
const registerCount = 7

// ErrInvalidTime is returned when the registers do not hold a valid date,
// usually because the oscillator stopped and the clock was never set.
var ErrInvalidTime = errors.New("rtc holds an invalid time")

// Clock reads the current time from a hardware clock.
type Clock interface {
	Now() (time.Time, error)
	Close() error
}

func bcd(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// decode converts the seven DS3231 time registers to a time in loc.
// The chip is kept in UTC by convention; loc is only used in tests.
func decode(regs []byte, loc *time.Location) (time.Time, error) {
	if len(regs) != registerCount {
		return time.Time{}, fmt.Errorf("decode rtc: got %d registers, want %d", len(regs), registerCount)
	}

	sec := bcd(regs[0] & 0x7f)
	min := bcd(regs[1] & 0x7f)

	var hour int
	if regs[2]&0x40 != 0 {
		// 12-hour mode, bit 5 is PM.
		hour = bcd(regs[2] & 0x1f)
		if hour == 12 {
			hour = 0
		}
		if regs[2]&0x20 != 0 {
			hour += 12
		}
	} else {
		hour = bcd(regs[2] & 0x3f)
	}

	day := bcd(regs[4] & 0x3f)
	month := bcd(regs[5] & 0x1f)
	year := 2000 + bcd(regs[6])
	if regs[5]&0x80 != 0 {
		year += 100
	}

	if sec > 59 || min > 59 || hour > 23 || day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("decode rtc %x: %w", regs, ErrInvalidTime)
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("decode rtc %x: %w", regs, ErrInvalidTime)
	}
	return t, nil
}
