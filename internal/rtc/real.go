//go:build linux

package rtc

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DS3231 reads the chip over I2C.
type DS3231 struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// Open initialises periph and opens the DS3231 on the named bus ("" for the
// first bus found).
func Open(busName string) (*DS3231, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	return &DS3231{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: Address}}, nil
}

// Now reads the time registers.
func (d *DS3231) Now() (time.Time, error) {
	regs := make([]byte, registerCount)
	if err := d.dev.Tx([]byte{0x00}, regs); err != nil {
		return time.Time{}, fmt.Errorf("read rtc registers: %w", err)
	}
	return decode(regs, time.UTC)
}

// Close releases the bus.
func (d *DS3231) Close() error {
	return d.bus.Close()
}

// SetSystemTime sets the kernel clock. Requires CAP_SYS_TIME.
func SetSystemTime(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return fmt.Errorf("settimeofday: %w", err)
	}
	return nil
}
