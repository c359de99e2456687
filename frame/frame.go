// Package frame encodes the telemetry frame sent over the radio.
//
// The layout is the "CustomSensor" format understood by the LaCrosse IT+
// receivers:
//
//	Byte  0: start byte (0xCC)
//	Byte  1: sensor id
//	Byte  2: number of data bytes that follow, CRC not counted (8)
//	Byte  3: sensor type (0xF9, Geiger counter)
//	Byte  4: counts per minute, last minute, MSB
//	Byte  5: counts per minute, last minute
//	Byte  6: counts per minute, last minute, LSB
//	Byte  7: counts per minute, last 60 minutes, MSB
//	Byte  8: counts per minute, last 60 minutes
//	Byte  9: counts per minute, last 60 minutes, LSB
//	Byte 10: battery level (0-255, 255 = 6.6V)
//	Byte 11: CRC-8 over bytes 0-10
package frame

import (
	"encoding/hex"
)

const (
	StartByte  byte = 0xCC
	TypeGeiger byte = 0xF9

	// Size is the total frame length on air.
	Size = 12
	// PayloadLength is the value of the length byte.
	PayloadLength = Size - 4

	// NoData is sent in place of an average that is not available yet.
	NoData uint32 = 0xFFFFFF

	crcPolynomial byte = 0x31
	valueMask          = 0xFFFFFF
)

// Frame is one encoded telemetry frame.
type Frame [Size]byte

// Build encodes the readings into a frame and appends its checksum. Averages
// wider than 24 bits are truncated to their low 24 bits.
func Build(sensorID byte, avg1, avg60 uint32, battery byte) Frame {
	var f Frame
	f[0] = StartByte
	f[1] = sensorID
	f[2] = PayloadLength
	f[3] = TypeGeiger
	put24(f[4:7], avg1)
	put24(f[7:10], avg60)
	f[10] = battery
	f[11] = Checksum8(f[:Size-1])
	return f
}

func put24(b []byte, v uint32) {
	v &= valueMask
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Checksum8 computes the CRC-8 (polynomial 0x31, initial value 0, MSB first,
// no final XOR) of b. The receivers validate exactly this variant.
func Checksum8(b []byte) byte {
	var crc byte
	for _, v := range b {
		for i := 0; i < 8; i++ {
			mix := (crc ^ v) & 0x80
			crc <<= 1
			if mix != 0 {
				crc ^= crcPolynomial
			}
			v <<= 1
		}
	}
	return crc
}

// Bytes returns the frame as a slice.
func (f *Frame) Bytes() []byte {
	return f[:]
}

// SensorID returns the sensor id byte.
func (f *Frame) SensorID() byte { return f[1] }

// ShortTerm returns the 1-minute average field.
func (f *Frame) ShortTerm() uint32 { return get24(f[4:7]) }

// LongTerm returns the 60-minute average field.
func (f *Frame) LongTerm() uint32 { return get24(f[7:10]) }

// Battery returns the battery level byte.
func (f *Frame) Battery() byte { return f[10] }

// Valid reports whether the fixed header bytes and the checksum are intact.
func (f *Frame) Valid() bool {
	return f[0] == StartByte &&
		f[2] == PayloadLength &&
		f[3] == TypeGeiger &&
		Checksum8(f[:]) == 0
}

func (f Frame) String() string {
	return hex.EncodeToString(f[:])
}
