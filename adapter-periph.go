//go:build !tinygo

package foxgeig

import (
	"fmt"
	"os"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"github.com/michcald/foxgeig/adc"
	"github.com/michcald/foxgeig/config"
	"github.com/michcald/foxgeig/console"
	"github.com/michcald/foxgeig/geiger"
	"github.com/michcald/foxgeig/hal"
	"github.com/michcald/foxgeig/logger"
	"github.com/michcald/foxgeig/node"
	"github.com/michcald/foxgeig/rfm69"
)

// New wires a node on a Linux host (e.g. a Raspberry Pi) from cfg. The
// radio is on SPI, the battery is read through an ADS1115 on I2C and the
// debug console, if any, is a serial port. The sensor id comes from the
// identity section of cfg when it is valid.
func New(cfg *config.Config) (*System, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	logger.SetLogger(logger.NewTint(os.Stderr, level))

	edge, err := ParseEdge(cfg.Hardware.PulseEdge)
	if err != nil {
		return nil, err
	}

	// 1. Initialize periph.io host (Required for SPI, I2C and GPIO)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize periph.io host: %w", ErrPkg, err)
	}

	s := &System{
		edge:       edge,
		tickPeriod: cfg.Node.TickPeriod,
	}
	fail := func(err error) (*System, error) {
		s.Close()
		return nil, err
	}

	// 2. Radio
	conn, port, err := hal.OpenSPI(cfg.Hardware.SPIPort, cfg.Hardware.SPIClockHz)
	if err != nil {
		return nil, err
	}
	var reset hal.Pin
	if cfg.Hardware.ResetPin != 0 {
		if reset, err = hal.OpenPin(cfg.Hardware.ResetPin); err != nil {
			port.Close()
			return nil, err
		}
	}
	radio, err := rfm69.NewWithHardware(rfm69.HardwareConfig{
		RadioConfig: radioConfig(cfg.Radio),
		Reset:       reset,
		Port:        port,
	}, conn)
	if err != nil {
		port.Close()
		return nil, err
	}
	s.radio = radio
	s.closers = append(s.closers, radio)
	logger.Info("Radio initialized: " + radio.String())

	// 3. Battery ADC
	bus, err := i2creg.Open(cfg.Hardware.I2CBus)
	if err != nil {
		return fail(fmt.Errorf("%w: failed to open I2C bus: %w", ErrPkg, err))
	}
	s.closers = append(s.closers, bus)
	battery, err := adc.NewADS1115(bus, adcOptions(cfg))
	if err != nil {
		return fail(err)
	}

	// 4. Console
	var cons node.Console = console.Nop{}
	if cfg.Console.Port != "" {
		serial := console.NewSerial(cfg.Console.Port, cfg.Console.BaudRate)
		s.closers = append(s.closers, serial)
		cons = serial
	}

	// 5. Pulse line
	if s.pulse, err = hal.OpenPin(cfg.Hardware.PulsePin); err != nil {
		return fail(err)
	}

	// 6. Watchdog
	watchdog := node.NewSoftWatchdog(cfg.Node.WatchdogTimeout, func() {
		os.Exit(1)
	})
	s.startWatchdog = func() error {
		watchdog.Start()
		return nil
	}
	s.stopWatchdog = watchdog.Stop

	// 7. Control loop
	n, err := node.New(nodeConfig(cfg), node.Deps{
		Radio:    radio,
		ADC:      battery,
		Counter:  geiger.NewCounter(cfg.Node.HistorySlots),
		Console:  cons,
		Watchdog: watchdog,
	})
	if err != nil {
		return fail(err)
	}
	s.node = n
	return s, nil
}

func radioConfig(c config.RadioConfig) rfm69.RadioConfig {
	return rfm69.RadioConfig{
		FrequencyHz: c.FrequencyHz,
		BitRate:     c.BitRate,
		DeviationHz: c.DeviationHz,
		PALevel:     c.PALevel,
		SyncWord:    c.SyncBytes(),
		RetryBudget: c.RetryBudget,
	}
}

func nodeConfig(cfg *config.Config) node.Config {
	return node.Config{
		SensorID:         node.ResolveSensorID(cfg, node.DefaultSensorID),
		BatteryChannel:   cfg.Node.BatteryChannel,
		BaseInterval:     cfg.Node.BaseInterval,
		ConsolePoll:      cfg.Node.ConsolePoll,
		BatteryFullScale: cfg.Node.BatteryFullScale,
	}
}

func adcOptions(cfg *config.Config) adc.Options {
	return adc.Options{
		Address: cfg.Hardware.ADCAddress,
		Channels: map[uint8]ads1x15.Channel{
			cfg.Node.BatteryChannel: ads1x15.Channel(cfg.Hardware.ADCInput),
		},
		FullScale: physic.ElectricPotential(float64(cfg.Hardware.ADCFullScale) * float64(physic.Volt)),
	}
}
