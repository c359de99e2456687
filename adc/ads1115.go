//go:build !tinygo

package adc

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/michcald/foxgeig/logger"
	"github.com/michcald/foxgeig/node"
)

var _ node.ADC = (*ADS1115)(nil)

// reader is the part of ads1x15.PinADC used here.
type reader interface {
	Read() (analog.Sample, error)
	Halt() error
}

type Options struct {
	// Address is the I2C address of the converter.
	// Defaults to 0x48 if not provided.
	Address uint16
	// Channels maps node channel numbers to converter inputs.
	// Defaults to channel 12 on AIN0 if not provided.
	Channels map[uint8]ads1x15.Channel
	// Range is the programmable gain range.
	// Defaults to 4.096 V if not provided.
	Range physic.ElectricPotential
	// FullScale is the input voltage that reads as MaxCode.
	// Defaults to 3.3 V if not provided.
	FullScale physic.ElectricPotential
}

func (o *Options) applyDefaults() {
	if o.Address == 0 {
		o.Address = ads1x15.DefaultOpts.I2cAddress
	}
	if len(o.Channels) == 0 {
		o.Channels = map[uint8]ads1x15.Channel{node.DefaultBatteryChannel: ads1x15.Channel0}
	}
	if o.Range == 0 {
		o.Range = 4096 * physic.MilliVolt
	}
	if o.FullScale == 0 {
		o.FullScale = 3300 * physic.MilliVolt
	}
}

// ADS1115 is a node.ADC on a TI ADS1115 over I2C. The converter runs in
// single shot mode and powers itself down between conversions.
type ADS1115 struct {
	opts Options
	open func(ch ads1x15.Channel) (reader, error)

	mu      sync.Mutex
	channel ads1x15.Channel
	pin     reader
}

// NewADS1115 opens an ADS1115 on bus.
func NewADS1115(bus i2c.Bus, opts Options) (*ADS1115, error) {
	opts.applyDefaults()

	o := ads1x15.DefaultOpts
	o.I2cAddress = opts.Address
	dev, err := ads1x15.NewADS1115(bus, &o)
	if err != nil {
		return nil, fmt.Errorf("%w: ads1115: %w", ErrPkg, err)
	}

	a := newADS1115(opts)
	a.open = func(ch ads1x15.Channel) (reader, error) {
		return dev.PinForChannel(ch, opts.Range, 860*physic.Hertz, ads1x15.SaveEnergy)
	}
	logger.Info(fmt.Sprintf("ADS1115 at 0x%02X", opts.Address))
	return a, nil
}

func newADS1115(opts Options) *ADS1115 {
	return &ADS1115{opts: opts, channel: -1}
}

// Select routes a node channel to its converter input.
func (a *ADS1115) Select(channel uint8) error {
	ch, ok := a.opts.Channels[channel]
	if !ok {
		return fmt.Errorf("%w: channel %d is not mapped", ErrPkg, channel)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ch == a.channel {
		return nil
	}
	// The old pin is dropped even if halting it fails.
	err := a.halt()
	a.channel = ch
	return err
}

// Power(false) releases the input pin. Power(true) is a no-op.
func (a *ADS1115) Power(on bool) error {
	if on {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halt()
}

func (a *ADS1115) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pin != nil {
		return nil
	}
	if a.channel < 0 {
		return fmt.Errorf("%w: no channel selected", ErrPkg)
	}
	pin, err := a.open(a.channel)
	if err != nil {
		return fmt.Errorf("%w: open channel: %w", ErrPkg, err)
	}
	a.pin = pin
	return nil
}

// Read runs a single conversion.
func (a *ADS1115) Read() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pin == nil {
		return 0, fmt.Errorf("%w: conversion not started", ErrPkg)
	}
	s, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: read: %w", ErrPkg, err)
	}
	return ToCode(float32(s.V), float32(a.opts.FullScale)), nil
}

// halt must be called with mu held.
func (a *ADS1115) halt() error {
	if a.pin == nil {
		return nil
	}
	err := a.pin.Halt()
	a.pin = nil
	if err != nil {
		return fmt.Errorf("%w: halt: %w", ErrPkg, err)
	}
	return nil
}
