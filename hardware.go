// Package foxgeig wires a Geiger counter telemetry node to its hardware: the
// tube's pulse line, an RFM69 transmitter on SPI, a battery ADC and an
// optional debug console.
//
// New builds the node on a Linux host through periph.io, NewTinyGo on a
// microcontroller. Both return a System that is started with Run.
package foxgeig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/michcald/foxgeig/hal"
	"github.com/michcald/foxgeig/logger"
	"github.com/michcald/foxgeig/node"
	"github.com/michcald/foxgeig/rfm69"
)

var ErrPkg = errors.New("foxgeig")

// System is a node wired to its hardware.
type System struct {
	node  *node.Node
	radio *rfm69.Device

	pulse      hal.Pin
	edge       hal.Edge
	tickPeriod time.Duration

	startWatchdog func() error
	stopWatchdog  func()

	// Released by Close in reverse order.
	closers []io.Closer
}

// Node returns the control loop, mainly for its Stats.
func (s *System) Node() *node.Node {
	return s.node
}

// Radio returns the radio driver.
func (s *System) Radio() *rfm69.Device {
	return s.radio
}

// Run watches the pulse line, starts the tick source and the watchdog and
// runs the control loop until ctx is done.
func (s *System) Run(ctx context.Context) error {
	if err := s.pulse.In(hal.PullUp); err != nil {
		return fmt.Errorf("%w: pulse pin: %w", ErrPkg, err)
	}
	if err := s.pulse.Watch(s.edge, s.node.OnPulse); err != nil {
		return fmt.Errorf("%w: watch pulse pin: %w", ErrPkg, err)
	}
	defer s.pulse.Unwatch()
	logger.Debug("Counting pulses on " + s.edge.String() + " edges")

	ticks := node.NewTickSource(s.tickPeriod, s.node.OnTick)
	ticks.Start()
	defer ticks.Stop()

	if s.startWatchdog != nil {
		if err := s.startWatchdog(); err != nil {
			return fmt.Errorf("%w: start watchdog: %w", ErrPkg, err)
		}
	}
	if s.stopWatchdog != nil {
		defer s.stopWatchdog()
	}

	return s.node.Run(ctx)
}

// Close releases the hardware.
func (s *System) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// ParseEdge converts "rising", "falling" or "both" to a hal.Edge.
func ParseEdge(s string) (hal.Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising":
		return hal.RisingEdge, nil
	case "falling", "":
		return hal.FallingEdge, nil
	case "both":
		return hal.BothEdges, nil
	default:
		return hal.NoEdge, fmt.Errorf("%w: invalid pulse edge %q", ErrPkg, s)
	}
}
