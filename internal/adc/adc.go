// Package adc samples the analog sensor channels with hardware abstraction.
// The real implementation talks to an ADS1115 over I2C.
// The fake implementation allows testing without hardware.
package adc

// Channels is the number of sensor channels sampled on every read.
const Channels = 3

// Reading is one sample of every channel.
type Reading struct {
	// Values are the raw converter counts, CH01..CH03.
	Values [Channels]int32
	// Voltages are the derived input voltages in volts.
	Voltages [Channels]float64
}

// Sampler reads the sensor channels.
type Sampler interface {
	// Read returns one sample of all channels.
	Read() (Reading, error)

	// Close releases the bus and converter.
	Close() error
}

// Defaults for an ADS1115 breakout with ADDR tied to ground.
const (
	DefaultAddress    = 0x48
	DefaultMaxVoltage = 4.096
	DefaultRateHz     = 128
)

// Options configures the real sampler.
type Options struct {
	Bus        string // I2C bus name; empty selects the first bus
	Address    uint16
	MaxVoltage float64 // full-scale input range in volts
	RateHz     int
}

func (o Options) withDefaults() Options {
	if o.Address == 0 {
		o.Address = DefaultAddress
	}
	if o.MaxVoltage <= 0 {
		o.MaxVoltage = DefaultMaxVoltage
	}
	if o.RateHz <= 0 {
		o.RateHz = DefaultRateHz
	}
	return o
}
