// Package logic contains the pure scheduling rules for the vent actuator.
// This package has NO external dependencies (no GPIO, PWM, I2C, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Angle is an actuator angle in degrees.
type Angle float64

// Position is the logical state of the vent.
type Position string

const (
	PositionOpen   Position = "OPEN"
	PositionClosed Position = "CLOSED"
)

// TimeOfDay is the offset from local midnight, with nanosecond precision.
type TimeOfDay time.Duration

// Window is an inclusive time-of-day range during which the vent is closed.
// Windows crossing midnight (Start > End) are not supported and contain nothing.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Angles holds the two configured actuator positions.
type Angles struct {
	Closed Angle
	Open   Angle
}
