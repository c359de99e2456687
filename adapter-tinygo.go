//go:build tinygo

package foxgeig

import (
	"io"
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"github.com/michcald/foxgeig/adc"
	"github.com/michcald/foxgeig/console"
	"github.com/michcald/foxgeig/geiger"
	"github.com/michcald/foxgeig/hal"
	"github.com/michcald/foxgeig/node"
	"github.com/michcald/foxgeig/rfm69"
)

// TinyGoConfig holds the configuration for the TinyGo build.
type TinyGoConfig struct {
	Radio rfm69.RadioConfig
	Node  node.Config
	// SPI is the configured bus the radio is on.
	SPI drivers.SPI
	// CSPin is the radio's chip select.
	CSPin machine.Pin
	// ResetPin is the radio's reset line.
	// Optional. Set to machine.NoPin if not connected.
	ResetPin machine.Pin
	// PulsePin is the tube's pulse output.
	PulsePin machine.Pin
	// PulseEdge is the edge a pulse is counted on.
	// Defaults to hal.FallingEdge if not provided.
	PulseEdge hal.Edge
	// BatteryPin is the ADC pin wired to the battery divider. It is read as
	// Node.BatteryChannel.
	BatteryPin machine.Pin
	// TickPeriod defaults to node.DefaultTickPeriod if not provided.
	TickPeriod time.Duration
	// WatchdogTimeout defaults to node.DefaultWatchdogTimeout if not provided.
	WatchdogTimeout time.Duration
}

// NewTinyGo wires a node on a microcontroller. The sensor id is read from
// the start of the flash data area when it holds a valid identity.
func NewTinyGo(c TinyGoConfig) (*System, error) {
	if c.PulseEdge == hal.NoEdge {
		c.PulseEdge = hal.FallingEdge
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = node.DefaultWatchdogTimeout
	}

	var reset hal.Pin
	if c.ResetPin != machine.NoPin {
		reset = hal.NewPin(c.ResetPin)
	}
	radio, err := rfm69.NewWithHardware(rfm69.HardwareConfig{
		RadioConfig: c.Radio,
		Reset:       reset,
	}, hal.NewSPI(c.SPI, c.CSPin))
	if err != nil {
		return nil, err
	}

	if c.Node.BatteryChannel == 0 {
		c.Node.BatteryChannel = node.DefaultBatteryChannel
	}
	battery := adc.NewMachine(map[uint8]machine.Pin{c.Node.BatteryChannel: c.BatteryPin})

	c.Node.SensorID = node.ResolveSensorID(flashIdentity{}, node.DefaultSensorID)

	timeout := uint32(c.WatchdogTimeout / time.Millisecond)
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: timeout}); err != nil {
		return nil, err
	}

	n, err := node.New(c.Node, node.Deps{
		Radio:    radio,
		ADC:      battery,
		Counter:  geiger.NewCounter(geiger.DefaultCapacity),
		Console:  console.NewUSB(),
		Watchdog: hardwareWatchdog{},
	})
	if err != nil {
		return nil, err
	}

	return &System{
		node:          n,
		radio:         radio,
		pulse:         hal.NewPin(c.PulsePin),
		edge:          c.PulseEdge,
		tickPeriod:    c.TickPeriod,
		startWatchdog: machine.Watchdog.Start,
		closers:       []io.Closer{radio},
	}, nil
}

// hardwareWatchdog feeds machine.Watchdog. It cannot be stopped once
// started.
type hardwareWatchdog struct{}

func (hardwareWatchdog) Feed() { machine.Watchdog.Update() }

// flashIdentity reads the sensor id and its check byte from the first two
// bytes of the flash data area.
type flashIdentity struct{}

func (flashIdentity) ReadIdentity() (id, check byte, err error) {
	var buf [2]byte
	if _, err := machine.Flash.ReadAt(buf[:], 0); err != nil {
		return 0, 0, err
	}
	return buf[0], buf[1], nil
}
