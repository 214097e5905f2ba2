//go:build linux

package adc

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

var singleEnded = [Channels]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2}

// RealSampler reads an ADS1115 on the Linux I2C bus.
type RealSampler struct {
	bus  i2c.BusCloser
	pins [Channels]ads1x15.PinADC
}

// NewRealSampler opens the I2C bus and configures channels 0-2 as single-ended inputs.
func NewRealSampler(opts Options) (*RealSampler, error) {
	opts = opts.withDefaults()

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", opts.Bus, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.Address})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open ads1115 at %#x: %w", opts.Address, err)
	}

	s := &RealSampler{bus: bus}
	maxV := physic.ElectricPotential(opts.MaxVoltage * float64(physic.Volt))
	rate := physic.Frequency(opts.RateHz) * physic.Hertz
	for i, ch := range singleEnded {
		pin, err := dev.PinForChannel(ch, maxV, rate, ads1x15.BestQuality)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("configure channel %d: %w", i, err)
		}
		s.pins[i] = pin
	}
	return s, nil
}

// Read converts each channel in turn.
func (s *RealSampler) Read() (Reading, error) {
	var r Reading
	for i, pin := range s.pins {
		sample, err := pin.Read()
		if err != nil {
			return Reading{}, fmt.Errorf("read channel %d: %w", i+1, err)
		}
		r.Values[i] = sample.Raw
		r.Voltages[i] = float64(sample.V) / float64(physic.Volt)
	}
	return r, nil
}

// Close halts the channels and releases the bus.
func (s *RealSampler) Close() error {
	var errs error
	for i, pin := range s.pins {
		if pin == nil {
			continue
		}
		if err := pin.Halt(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("halt channel %d: %w", i+1, err))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close i2c bus: %w", err))
		}
	}
	return errs
}
