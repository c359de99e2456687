package rfm69

import (
	"fmt"

	"github.com/michcald/foxgeig/hal"
)

// Registers gives named access to the RFM69 registers over SPI. All the bit
// packing of the chip lives here; Device only speaks in modes and packets.
//
// Registers is not safe for concurrent use, Device serializes access.
type Registers struct {
	conn    hal.SPI
	scratch [fifoSize + 1]byte // FIFO burst + address byte
}

// NewRegisters returns a register accessor on conn.
func NewRegisters(conn hal.SPI) *Registers {
	return &Registers{conn: conn}
}

func (r *Registers) transfer(n int) error {
	buf := r.scratch[:n]
	if err := r.conn.Tx(buf, buf); err != nil {
		return fmt.Errorf("%w: spi transfer: %w", ErrPkg, err)
	}
	return nil
}

// ReadReg reads a single register.
func (r *Registers) ReadReg(reg byte) (byte, error) {
	r.scratch[0] = reg & addrMask
	r.scratch[1] = 0
	if err := r.transfer(2); err != nil {
		return 0, err
	}
	return r.scratch[1], nil
}

// WriteReg writes vals to consecutive registers starting at reg.
func (r *Registers) WriteReg(reg byte, vals ...byte) error {
	if len(vals) > fifoSize {
		return fmt.Errorf("%w: burst of %d bytes exceeds %d", ErrPkg, len(vals), fifoSize)
	}
	r.scratch[0] = reg | writeFlag
	copy(r.scratch[1:], vals)
	return r.transfer(1 + len(vals))
}

// Mode returns the operating mode currently set in RegOpMode.
func (r *Registers) Mode() (Mode, error) {
	v, err := r.ReadReg(regOpMode)
	return Mode(v & opModeMask), err
}

// SetMode changes the operating mode, leaving the other RegOpMode bits alone.
func (r *Registers) SetMode(m Mode) error {
	v, err := r.ReadReg(regOpMode)
	if err != nil {
		return err
	}
	return r.WriteReg(regOpMode, v&^opModeMask|byte(m)&opModeMask)
}

// ModeReady reports whether the last mode change has completed.
func (r *Registers) ModeReady() (bool, error) {
	v, err := r.ReadReg(regIrqFlags1)
	return v&irq1ModeReady != 0, err
}

// PacketSent reports whether the packet in the FIFO has been sent.
func (r *Registers) PacketSent() (bool, error) {
	v, err := r.ReadReg(regIrqFlags2)
	return v&irq2PacketSent != 0, err
}

// ClearFIFO empties the FIFO. All other bits of RegIrqFlags2 are read-only,
// so no read-modify-write is needed.
func (r *Registers) ClearFIFO() error {
	return r.WriteReg(regIrqFlags2, irq2FifoOverrun)
}

// WriteFIFO appends p to the FIFO in one burst.
func (r *Registers) WriteFIFO(p []byte) error {
	return r.WriteReg(regFifo, p...)
}

// SetFrequency programs the carrier frequency in Hz.
func (r *Registers) SetFrequency(hz uint32) error {
	if hz == 0 {
		return fmt.Errorf("%w: frequency must not be zero", ErrPkg)
	}
	// Fstep = Fxosc / 2^19
	frf := (uint64(hz) << 19) / fxosc
	return r.WriteReg(regFrfMsb, byte(frf>>16), byte(frf>>8), byte(frf))
}

// SetDataRate programs the bit rate in bits per second.
func (r *Registers) SetDataRate(bps uint32) error {
	if bps == 0 {
		return fmt.Errorf("%w: data rate must not be zero", ErrPkg)
	}
	v := (fxosc + bps/2) / bps
	if v > 0xFFFF {
		return fmt.Errorf("%w: data rate %d bps too low", ErrPkg, bps)
	}
	return r.WriteReg(regBitrateMsb, byte(v>>8), byte(v))
}

// SetDeviation programs the FSK frequency deviation in Hz.
func (r *Registers) SetDeviation(hz uint32) error {
	v := ((uint64(hz) << 19) + fxosc/2) / fxosc
	if v > 0x3FFF {
		return fmt.Errorf("%w: deviation %d Hz out of range", ErrPkg, hz)
	}
	return r.WriteReg(regFdevMsb, byte(v>>8), byte(v))
}

// SetSync enables sync word detection/generation with 1 to 8 sync bytes.
func (r *Registers) SetSync(sync []byte) error {
	if len(sync) < 1 || len(sync) > 8 {
		return fmt.Errorf("%w: invalid number of sync bytes: %d, must be 1..8", ErrPkg, len(sync))
	}
	if err := r.WriteReg(regSyncConfig, syncOn|byte(len(sync)-1)<<3); err != nil {
		return err
	}
	return r.WriteReg(regSyncValue1, sync...)
}

// SetPowerLevel writes RegPaLevel (PA selection bits and output power).
func (r *Registers) SetPowerLevel(v byte) error {
	return r.WriteReg(regPaLevel, v)
}

// Version returns the silicon revision from RegVersion.
func (r *Registers) Version() (byte, error) {
	return r.ReadReg(regVersion)
}
