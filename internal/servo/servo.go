// Package servo drives the vent servo with hardware abstraction.
// Real drivers use the BCM2835 hardware PWM (go-rpio) or a PCA9685 over I2C.
// The fake driver records commanded angles for tests.
package servo

import (
	"math"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

// Driver moves the servo.
type Driver interface {
	// SetAngle moves the servo to angle degrees. It blocks until the pulse is applied.
	SetAngle(angle logic.Angle) error

	// Stop disables the PWM output. Safe to call more than once.
	Stop() error
}

// DefaultPin is the BCM pin the servo signal is wired to.
const DefaultPin = 13

// Calibration defaults for a standard hobby servo.
const (
	DefaultMinDeg      = 0.0
	DefaultMaxDeg      = 180.0
	DefaultMinPulse    = 500 * time.Microsecond
	DefaultMaxPulse    = 2500 * time.Microsecond
	DefaultFrequencyHz = 50
)

// Calibration maps angles to pulse widths.
type Calibration struct {
	MinDeg      float64
	MaxDeg      float64
	MinPulse    time.Duration
	MaxPulse    time.Duration
	FrequencyHz int
}

// DefaultCalibration returns the 0-180 degree, 500-2500us, 50Hz calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		MinDeg:      DefaultMinDeg,
		MaxDeg:      DefaultMaxDeg,
		MinPulse:    DefaultMinPulse,
		MaxPulse:    DefaultMaxPulse,
		FrequencyHz: DefaultFrequencyHz,
	}
}

// WithDefaults fills zero fields from DefaultCalibration.
func (c Calibration) WithDefaults() Calibration {
	d := DefaultCalibration()
	if c.MaxDeg <= c.MinDeg {
		c.MinDeg, c.MaxDeg = d.MinDeg, d.MaxDeg
	}
	if c.MinPulse <= 0 {
		c.MinPulse = d.MinPulse
	}
	if c.MaxPulse <= c.MinPulse {
		c.MaxPulse = d.MaxPulse
	}
	if c.FrequencyHz <= 0 {
		c.FrequencyHz = d.FrequencyHz
	}
	return c
}

// Period returns the PWM period.
func (c Calibration) Period() time.Duration {
	return time.Second / time.Duration(c.FrequencyHz)
}

// Clamp limits angle to the calibrated range.
func (c Calibration) Clamp(angle logic.Angle) logic.Angle {
	a := math.Max(c.MinDeg, math.Min(c.MaxDeg, float64(angle)))
	return logic.Angle(a)
}

// Pulse returns the pulse width for angle, clamped to the calibrated range.
func (c Calibration) Pulse(angle logic.Angle) time.Duration {
	deg := float64(c.Clamp(angle))
	scale := float64(c.MaxPulse-c.MinPulse) / (c.MaxDeg - c.MinDeg)
	return c.MinPulse + time.Duration(math.Round((deg-c.MinDeg)*scale))
}

// DutyFraction returns the pulse width as a fraction of the PWM period.
func (c Calibration) DutyFraction(angle logic.Angle) float64 {
	return float64(c.Pulse(angle)) / float64(c.Period())
}
