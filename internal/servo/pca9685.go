//go:build linux

package servo

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/sweeney/vent-controller/internal/logic"
)

// DefaultPCA9685Address is the board address with no jumpers set.
const DefaultPCA9685Address = 0x40

// pcaResolution is the PCA9685 12-bit counter range.
const pcaResolution = 4096

// PCA9685Driver drives one channel of a PCA9685 PWM board.
type PCA9685Driver struct {
	mu      sync.Mutex
	bus     i2c.BusCloser
	dev     *pca9685.Dev
	channel int
	cal     Calibration
	stopped bool
}

// NewPCA9685Driver opens the board on busName and sets the servo frequency.
func NewPCA9685Driver(busName string, address uint16, channel int, cal Calibration) (*PCA9685Driver, error) {
	if channel < 0 || channel > 15 {
		return nil, fmt.Errorf("pca9685 channel %d out of range 0-15", channel)
	}
	if address == 0 {
		address = DefaultPCA9685Address
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	dev, err := pca9685.NewI2C(bus, address)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open pca9685 at %#x: %w", address, err)
	}

	cal = cal.WithDefaults()
	if err := dev.SetPwmFreq(physic.Frequency(cal.FrequencyHz) * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("set pwm frequency: %w", err)
	}

	return &PCA9685Driver{bus: bus, dev: dev, channel: channel, cal: cal}, nil
}

// SetAngle applies the pulse width for angle.
func (d *PCA9685Driver) SetAngle(angle logic.Angle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	off := gpio.Duty(d.cal.DutyFraction(angle) * pcaResolution)
	if err := d.dev.SetPwm(d.channel, 0, off); err != nil {
		return fmt.Errorf("set pwm channel %d: %w", d.channel, err)
	}
	return nil
}

// Stop turns the channel off and releases the bus.
func (d *PCA9685Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true

	var errs error
	if err := d.dev.SetPwm(d.channel, 0, 0); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("disable pwm channel %d: %w", d.channel, err))
	}
	if err := d.bus.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close i2c bus: %w", err))
	}
	return errs
}
