// Package rfm69 drives a HopeRF RFM69 (Semtech SX1231) as a transmit-only
// FSK radio.
//
// The chip moves through Sleep, Standby and Transmitting. A transmission can
// only be started from Standby and the driver always returns the chip to
// Standby afterwards, whatever the outcome. Delivery is best effort: there is
// no acknowledgement on this link and a timed out packet is not retried.
package rfm69

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/michcald/foxgeig/hal"
	"github.com/michcald/foxgeig/logger"
)

var (
	ErrPkg             = errors.New("rfm69")
	ErrTransmitTimeout = errors.New("timeout waiting for packet sent")
	ErrModeTimeout     = errors.New("timeout waiting for mode ready")
	ErrNotStandby      = errors.New("radio is not in standby")
)

const (
	// DefaultRetryBudget is the number of status polls before giving up.
	DefaultRetryBudget = 10000
	// MaxPayload is the largest packet the FIFO can hold.
	MaxPayload = fifoSize

	startupDelay = 10 * time.Millisecond
)

// State is the power state of the radio as tracked by the driver.
type State uint8

const (
	Sleep State = iota
	Standby
	Transmitting
)

func (s State) String() string {
	switch s {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case Transmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

type RadioConfig struct {
	// FrequencyHz is the carrier frequency.
	// Defaults to 868.3 MHz if not provided.
	FrequencyHz uint32
	// BitRate is the air data rate in bits per second.
	// Defaults to 17241 bps (LaCrosse IT+) if not provided.
	BitRate uint32
	// DeviationHz is the FSK frequency deviation.
	// Defaults to 90 kHz if not provided.
	DeviationHz uint32
	// PALevel is written verbatim to RegPaLevel.
	// Defaults to 0x9F (PA0 on, +13 dBm) if not provided.
	PALevel byte
	// SyncWord holds 1 to 8 sync bytes.
	// Defaults to 0x2D 0xD4 if not provided.
	SyncWord []byte
	// RetryBudget bounds the status polls of PowerUp and Transmit.
	// Defaults to DefaultRetryBudget if not provided.
	RetryBudget int
}

type HardwareConfig struct {
	RadioConfig
	// Reset is the chip's reset pin (active high).
	// Optional. If not provided, the chip is not reset at startup.
	Reset hal.Pin
	// Port is released by Close.
	// Optional.
	Port io.Closer
}

// Device is an RFM69 transmitter.
type Device struct {
	config HardwareConfig
	regs   *Registers
	mu     sync.Mutex
	state  State
}

func (c *RadioConfig) applyDefaults() {
	if c.FrequencyHz == 0 {
		c.FrequencyHz = 868300000
	}
	if c.BitRate == 0 {
		c.BitRate = 17241
	}
	if c.DeviationHz == 0 {
		c.DeviationHz = 90000
	}
	if c.PALevel == 0 {
		c.PALevel = 0x9F
	}
	if len(c.SyncWord) == 0 {
		c.SyncWord = []byte{0x2D, 0xD4}
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
}

// NewWithHardware creates an RFM69 driver on the given SPI connection,
// resets the chip if a reset pin is configured and runs Initialize. The
// radio is left in Sleep.
func NewWithHardware(c HardwareConfig, conn hal.SPI) (*Device, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: SPI connection not configured", ErrPkg)
	}
	c.applyDefaults()
	if len(c.SyncWord) > 8 {
		return nil, fmt.Errorf("%w: sync word must be 1 to 8 bytes", ErrPkg)
	}

	dev := &Device{
		config: c,
		regs:   NewRegisters(conn),
	}

	if c.Reset != nil {
		logger.Debug("Resetting RFM69...")
		if err := c.Reset.Out(hal.High); err != nil {
			return nil, fmt.Errorf("%w: reset pin: %w", ErrPkg, err)
		}
		time.Sleep(100 * time.Microsecond)
		if err := c.Reset.Out(hal.Low); err != nil {
			return nil, fmt.Errorf("%w: reset pin: %w", ErrPkg, err)
		}
	}
	// The chip needs about 5 ms after power on or reset.
	time.Sleep(startupDelay)

	if err := dev.Initialize(); err != nil {
		return nil, err
	}
	return dev, nil
}

// Initialize writes the full register configuration and puts the radio to
// sleep. It can be called again at any time to restore the configuration.
// This method is concurrent safe.
func (d *Device) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	logger.Info("Initializing RFM69...")

	r := d.regs
	if err := r.SetMode(ModeStandby); err != nil {
		return err
	}
	for i := 0; i+1 < len(initRegs); i += 2 {
		if err := r.WriteReg(initRegs[i], initRegs[i+1]); err != nil {
			return err
		}
	}
	if err := r.SetPowerLevel(d.config.PALevel); err != nil {
		return err
	}
	if err := r.SetSync(d.config.SyncWord); err != nil {
		return err
	}
	if err := r.SetFrequency(d.config.FrequencyHz); err != nil {
		return err
	}
	if err := r.SetDataRate(d.config.BitRate); err != nil {
		return err
	}
	if err := r.SetDeviation(d.config.DeviationHz); err != nil {
		return err
	}
	if err := r.ClearFIFO(); err != nil {
		return err
	}

	// Read back the first sync byte to make sure SPI writes land.
	v, err := r.ReadReg(regSyncValue1)
	if err != nil {
		return err
	}
	if v != d.config.SyncWord[0] {
		return fmt.Errorf("%w: failed to verify RFM69 connection: check wiring/power", ErrPkg)
	}
	if ver, err := r.Version(); err == nil {
		logger.Debug("RFM69 version 0x" + strconv.FormatUint(uint64(ver), 16))
	}

	if err := r.SetMode(ModeSleep); err != nil {
		return err
	}
	d.state = Sleep

	logger.Info("RFM69 initialized and sleeping.")
	return nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fmt.Sprintf("RFM69(Frequency=%dHz, BitRate=%dbps, Deviation=%dHz, PALevel=0x%02X, State=%s)",
		d.config.FrequencyHz,
		d.config.BitRate,
		d.config.DeviationHz,
		d.config.PALevel,
		d.state,
	)
}

// State returns the power state the driver last put the chip in.
// This method is concurrent safe.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// PowerDown puts the radio into Sleep, stopping the oscillator.
// This method is concurrent safe.
func (d *Device) PowerDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.regs.SetMode(ModeSleep); err != nil {
		return err
	}
	d.state = Sleep
	return nil
}

// PowerUp puts the radio into Standby and waits until the chip reports the
// mode change as done. The wait is bounded by the retry budget.
// This method is concurrent safe.
func (d *Device) PowerUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.regs.SetMode(ModeStandby); err != nil {
		return err
	}
	for i := 0; i < d.config.RetryBudget; i++ {
		ready, err := d.regs.ModeReady()
		if err != nil {
			return err
		}
		if ready {
			d.state = Standby
			return nil
		}
	}
	logger.Warn("RFM69 did not become ready")
	return fmt.Errorf("%w: %w", ErrPkg, ErrModeTimeout)
}

// Transmit sends p as one packet. The radio must be in Standby. It returns
// ErrTransmitTimeout if the chip does not report the packet as sent within
// the retry budget. On return the radio is in Standby in every case.
// This method is concurrent safe.
func (d *Device) Transmit(p []byte) error {
	if len(p) == 0 || len(p) > MaxPayload {
		return fmt.Errorf("%w: payload size %d, must be 1 to %d bytes", ErrPkg, len(p), MaxPayload)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Standby {
		return fmt.Errorf("%w: %w (state %s)", ErrPkg, ErrNotStandby, d.state)
	}

	err := d.send(p)
	if serr := d.regs.SetMode(ModeStandby); serr != nil && err == nil {
		err = serr
	}
	d.state = Standby
	return err
}

// send must be called with mu held.
func (d *Device) send(p []byte) error {
	if err := d.regs.ClearFIFO(); err != nil {
		return err
	}
	if err := d.regs.WriteFIFO(p); err != nil {
		return err
	}
	// With TxStartCondition = FifoNotEmpty, entering transmit sends the packet.
	if err := d.regs.SetMode(ModeTransmit); err != nil {
		return err
	}
	d.state = Transmitting

	for i := 0; i < d.config.RetryBudget; i++ {
		sent, err := d.regs.PacketSent()
		if err != nil {
			return err
		}
		if sent {
			return nil
		}
	}
	logger.Warn("RFM69 transmit timeout")
	return fmt.Errorf("%w: %w", ErrPkg, ErrTransmitTimeout)
}

// Close puts the radio to sleep and releases the SPI port.
// This method is concurrent safe.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.regs.SetMode(ModeSleep); err != nil {
		logger.Warn("Failed to put RFM69 to sleep")
	}
	d.state = Sleep

	if d.config.Port != nil {
		if err := d.config.Port.Close(); err != nil {
			return fmt.Errorf("%w: close SPI port: %w", ErrPkg, err)
		}
		logger.Info("SPI bus closed.")
	}
	return nil
}
