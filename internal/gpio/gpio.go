// Package gpio drives the status indicator line with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator drives a single output line, typically an LED.
type Indicator interface {
	// Set drives the line active (true) or inactive (false).
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// NoPin disables the indicator.
const NoPin = -1

// Chip is the GPIO character device the indicator is requested from.
const Chip = "gpiochip0"

// Nop is an Indicator that does nothing. Used when no pin is configured.
type Nop struct{}

// Set does nothing.
func (Nop) Set(bool) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
