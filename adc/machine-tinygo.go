//go:build tinygo

package adc

import (
	"fmt"
	"machine"
)

// Machine is a node.ADC on the microcontroller's own converter.
type Machine struct {
	pins map[uint8]machine.Pin
	adc  machine.ADC
	ok   bool
}

// NewMachine maps node channel numbers to ADC capable pins.
func NewMachine(pins map[uint8]machine.Pin) *Machine {
	machine.InitADC()
	return &Machine{pins: pins}
}

func (m *Machine) Select(channel uint8) error {
	pin, ok := m.pins[channel]
	if !ok {
		return fmt.Errorf("%w: channel %d is not mapped", ErrPkg, channel)
	}
	m.adc = machine.ADC{Pin: pin}
	m.adc.Configure(machine.ADCConfig{})
	m.ok = true
	return nil
}

func (m *Machine) Power(bool) error { return nil }

func (m *Machine) Start() error { return nil }

// Read returns the top 10 bits of the 16 bit machine reading.
func (m *Machine) Read() (uint16, error) {
	if !m.ok {
		return 0, fmt.Errorf("%w: no channel selected", ErrPkg)
	}
	return m.adc.Get() >> 6, nil
}
