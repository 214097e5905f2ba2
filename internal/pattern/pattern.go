// Package pattern plays named motion sequences on the servo to signal device
// state (startup, errors) to someone standing next to it.
package pattern

import (
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

// Names of the built-in patterns.
const (
	DeviceOn = "device_on"
	Error1   = "error_1"
)

// Step holds the servo at Angle for Hold.
type Step struct {
	Angle logic.Angle
	Hold  time.Duration
}

// Pattern is an ordered list of steps.
type Pattern []Step

// Duration returns the total hold time of the pattern.
func (p Pattern) Duration() time.Duration {
	var d time.Duration
	for _, s := range p {
		d += s.Hold
	}
	return d
}

// Builtin returns the patterns available without configuration.
func Builtin() map[string]Pattern {
	return map[string]Pattern{
		// Full sweep so the installer can see the whole travel.
		DeviceOn: {
			{Angle: 90, Hold: 500 * time.Millisecond},
			{Angle: 0, Hold: 500 * time.Millisecond},
			{Angle: 180, Hold: 500 * time.Millisecond},
			{Angle: 90, Hold: 500 * time.Millisecond},
		},
		Error1: {
			{Angle: 60, Hold: 300 * time.Millisecond},
			{Angle: 120, Hold: 300 * time.Millisecond},
			{Angle: 60, Hold: 300 * time.Millisecond},
			{Angle: 120, Hold: 300 * time.Millisecond},
		},
	}
}

// Merge returns the built-in patterns overlaid with custom ones.
// A custom pattern replaces a built-in pattern of the same name.
func Merge(custom map[string]Pattern) map[string]Pattern {
	out := Builtin()
	for name, p := range custom {
		out[name] = p
	}
	return out
}
