//go:build tinygo

// Package console provides the debug links the node prints to: a serial
// port on Linux hosts, the USB CDC port under TinyGo, or nothing at all.
package console

import (
	"machine"
)

// USB is a console on machine.Serial, normally the USB CDC port. A host
// counts as attached while it asserts DTR.
type USB struct {
	port machine.Serialer
}

func NewUSB() *USB {
	return &USB{port: machine.Serial}
}

// Init does nothing, the runtime brings the port up.
func (u *USB) Init() error { return nil }

// Service echoes back whatever the host has sent.
func (u *USB) Service() {
	for u.port.Buffered() > 0 {
		c, err := u.port.ReadByte()
		if err != nil {
			return
		}
		u.port.Write([]byte("Received: "))
		u.port.WriteByte(c)
		u.port.Write([]byte("\r\n"))
	}
}

func (u *USB) HostAttached() bool {
	if d, ok := u.port.(interface{ DTR() bool }); ok {
		return d.DTR()
	}
	return false
}

func (u *USB) Print(s string) {
	u.port.Write([]byte(s))
}
