//go:build !tinygo

package hal

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// periphPin wraps a gpio.PinIO to satisfy the Pin interface.
type periphPin struct {
	gpio.PinIO
	pull      gpio.Pull
	stopWatch chan struct{}
}

// OpenPin looks up a GPIO by its BCM number ("GPIO<n>").
func OpenPin(number int) (Pin, error) {
	name := fmt.Sprintf("GPIO%d", number)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to open pin %s", name)
	}
	return &periphPin{PinIO: p, pull: gpio.PullUp}, nil
}

func (p *periphPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *periphPin) In(pull Pull) error {
	p.pull = toPeriphPull(pull)
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

func (p *periphPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

func (p *periphPin) Watch(edge Edge, handler func()) error {
	var pEdge gpio.Edge
	switch edge {
	case RisingEdge:
		pEdge = gpio.RisingEdge
	case FallingEdge:
		pEdge = gpio.FallingEdge
	case BothEdges:
		pEdge = gpio.BothEdges
	default:
		pEdge = gpio.NoEdge
	}

	if err := p.PinIO.In(p.pull, pEdge); err != nil {
		return err
	}

	stop := make(chan struct{})
	p.stopWatch = stop

	go func() {
		for {
			// -1 blocks until the next edge.
			fired := p.PinIO.WaitForEdge(-1)
			select {
			case <-stop:
				return
			default:
			}
			if fired {
				handler()
			}
		}
	}()
	return nil
}

func (p *periphPin) Unwatch() error {
	if p.stopWatch != nil {
		close(p.stopWatch)
		p.stopWatch = nil
	}
	// Disabling edge detection also wakes up the pending WaitForEdge.
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

func toPeriphPull(pull Pull) gpio.Pull {
	switch pull {
	case PullFloat:
		return gpio.Float
	case PullDown:
		return gpio.PullDown
	case PullUp:
		return gpio.PullUp
	default:
		return gpio.PullNoChange
	}
}

// OpenSPI opens the SPI port at path (e.g. "/dev/spidev0.0") in mode 0 with
// 8 bit words. The returned closer releases the port.
func OpenSPI(path string, clockHz int) (SPI, io.Closer, error) {
	p, err := spireg.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	conn, err := p.Connect(physic.Frequency(clockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}
	return conn, p, nil
}
