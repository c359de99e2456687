//go:build tinygo

package hal

import (
	"machine"

	"tinygo.org/x/drivers"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

// NewPin wraps a machine pin.
func NewPin(pin machine.Pin) Pin {
	return &tinygoPin{pin: pin}
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	var mode machine.PinMode
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

func (p *tinygoPin) Watch(edge Edge, handler func()) error {
	var change machine.PinChange
	switch edge {
	case RisingEdge:
		change = machine.PinRising
	case FallingEdge:
		change = machine.PinFalling
	case BothEdges:
		change = machine.PinToggle
	default:
		return nil
	}

	return p.pin.SetInterrupt(change, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	return p.pin.SetInterrupt(0, nil)
}

// tinygoSPI drives the chip select line around each transaction on a
// drivers.SPI bus (machine.SPI satisfies it).
type tinygoSPI struct {
	bus drivers.SPI
	cs  machine.Pin
}

// NewSPI wraps a configured SPI bus and its chip select pin. The CS pin is
// configured as output and left inactive (high).
func NewSPI(bus drivers.SPI, cs machine.Pin) SPI {
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	return &tinygoSPI{bus: bus, cs: cs}
}

func (s *tinygoSPI) Tx(w, r []byte) error {
	s.cs.Low()
	err := s.bus.Tx(w, r)
	s.cs.High()
	return err
}
