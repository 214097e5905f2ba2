//go:build linux

package servo

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/multierr"

	"github.com/sweeney/vent-controller/internal/logic"
)

// pwmPins are the BCM pins routed to a hardware PWM channel.
var pwmPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// pwmClockHz gives a 1us duty resolution.
const pwmClockHz = 1000000

// RPIODriver drives a servo from the BCM2835 hardware PWM.
type RPIODriver struct {
	mu       sync.Mutex
	pin      rpio.Pin
	cal      Calibration
	cycleLen uint32
	stopped  bool
}

// NewRPIODriver maps GPIO memory and configures pin for hardware PWM.
func NewRPIODriver(pin int, cal Calibration) (*RPIODriver, error) {
	if !pwmPins[pin] {
		return nil, fmt.Errorf("pin %d has no hardware pwm (use 12, 13, 18 or 19)", pin)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}

	cal = cal.WithDefaults()
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(pwmClockHz)

	return &RPIODriver{
		pin:      p,
		cal:      cal,
		cycleLen: uint32(cal.Period() / time.Microsecond),
	}, nil
}

// SetAngle applies the pulse width for angle.
func (d *RPIODriver) SetAngle(angle logic.Angle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	duty := uint32(d.cal.Pulse(angle) / time.Microsecond)
	d.pin.DutyCycle(duty, d.cycleLen)
	return nil
}

// Stop drops the duty cycle to zero, parks the pin low and unmaps GPIO memory.
func (d *RPIODriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true

	d.pin.DutyCycle(0, d.cycleLen)
	d.pin.Output()
	d.pin.Low()

	var errs error
	if err := rpio.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close gpio memory: %w", err))
	}
	return errs
}
