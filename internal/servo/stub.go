//go:build !linux

package servo

import (
	"errors"

	"github.com/sweeney/vent-controller/internal/logic"
)

// RPIODriver is not available on non-Linux platforms.
type RPIODriver struct{}

// NewRPIODriver returns an error on non-Linux platforms.
func NewRPIODriver(pin int, cal Calibration) (*RPIODriver, error) {
	return nil, errors.New("servo: not supported on this platform (requires Linux)")
}

// SetAngle is not implemented on non-Linux platforms.
func (d *RPIODriver) SetAngle(angle logic.Angle) error {
	return errors.New("servo: not supported")
}

// Stop is not implemented on non-Linux platforms.
func (d *RPIODriver) Stop() error {
	return nil
}

// DefaultPCA9685Address is the board address with no jumpers set.
const DefaultPCA9685Address = 0x40

// PCA9685Driver is not available on non-Linux platforms.
type PCA9685Driver struct{}

// NewPCA9685Driver returns an error on non-Linux platforms.
func NewPCA9685Driver(busName string, address uint16, channel int, cal Calibration) (*PCA9685Driver, error) {
	return nil, errors.New("servo: not supported on this platform (requires Linux)")
}

// SetAngle is not implemented on non-Linux platforms.
func (d *PCA9685Driver) SetAngle(angle logic.Angle) error {
	return errors.New("servo: not supported")
}

// Stop is not implemented on non-Linux platforms.
func (d *PCA9685Driver) Stop() error {
	return nil
}
