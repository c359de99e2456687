package rfm69

// RFM69 (SX1231) register addresses.
const (
	regFifo          = 0x00
	regOpMode        = 0x01
	regDataModul     = 0x02
	regBitrateMsb    = 0x03
	regFdevMsb       = 0x05
	regFrfMsb        = 0x07
	regVersion       = 0x10
	regPaLevel       = 0x11
	regOcp           = 0x13
	regDioMapping2   = 0x26
	regIrqFlags1     = 0x27
	regIrqFlags2     = 0x28
	regRssiThresh    = 0x29
	regSyncConfig    = 0x2E
	regSyncValue1    = 0x2F
	regPacketConfig1 = 0x37
	regPayloadLength = 0x38
	regFifoThresh    = 0x3C
	regPacketConfig2 = 0x3D
	regTestDagc      = 0x6F
)

// Register bits.
const (
	writeFlag = 0x80
	addrMask  = 0x7F

	opModeMask = 0x1C // Mode bits 4..2 of RegOpMode

	irq1ModeReady   = 1 << 7
	irq2FifoOverrun = 1 << 4 // writing 1 clears the FIFO
	irq2PacketSent  = 1 << 3

	syncOn = 1 << 7
)

// Mode is the operating mode field of RegOpMode.
type Mode byte

const (
	ModeSleep    Mode = 0 << 2
	ModeStandby  Mode = 1 << 2
	ModeSynth    Mode = 2 << 2
	ModeTransmit Mode = 3 << 2
	ModeReceive  Mode = 4 << 2
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeSynth:
		return "synth"
	case ModeTransmit:
		return "transmit"
	case ModeReceive:
		return "receive"
	default:
		return "unknown"
	}
}

const (
	// fxosc is the crystal frequency, all synthesizer values derive from it.
	fxosc = 32000000
	// fifoSize is the size of the chip's packet FIFO.
	fifoSize = 66
)

// initRegs is the static part of the chip configuration as <address, value>
// pairs: FSK packet mode, no shaping, +13 dBm on PA0, OCP off, CLKOUT off,
// CRC and AES off, transmit as soon as the FIFO is not empty.
var initRegs = []byte{
	regDataModul, 0x00,
	regOcp, 0x00,
	regDioMapping2, 0x07,
	regRssiThresh, 220,
	regPacketConfig1, 0x00,
	regPayloadLength, 64,
	regFifoThresh, 0x8F,
	regPacketConfig2, 0x02,
	regTestDagc, 0x30,
}
