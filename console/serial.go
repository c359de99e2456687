//go:build !tinygo

// Package console provides the debug links the node prints to: a serial
// port on Linux hosts, the USB CDC port under TinyGo, or nothing at all.
package console

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/michcald/foxgeig/logger"
	"github.com/michcald/foxgeig/node"
)

var ErrPkg = errors.New("console")

const (
	DefaultBaudRate = 115200

	readTimeout = time.Millisecond
	readBufSize = 64
)

var _ node.Console = (*Serial)(nil)

// port is the part of serial.Port the console uses.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

// Serial is a console on a serial port. A host counts as attached while it
// asserts DSR.
type Serial struct {
	name     string
	baudRate int
	open     func(name string, mode *serial.Mode) (port, error)

	mu   sync.Mutex
	conn port
	buf  [readBufSize]byte
}

// NewSerial returns a console for the named port. The port is opened by
// Init.
func NewSerial(name string, baudRate int) *Serial {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		name:     name,
		baudRate: baudRate,
		open: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}
}

// Init opens the serial port.
func (s *Serial) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn, err := s.open(s.name, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %w", ErrPkg, s.name, err)
	}
	if err := conn.SetReadTimeout(readTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("%w: set read timeout: %w", ErrPkg, err)
	}
	s.conn = conn
	logger.Info("Console on " + s.name)
	return nil
}

// Service echoes back whatever the host has sent.
func (s *Serial) Service() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	n, err := s.conn.Read(s.buf[:])
	if err != nil {
		logger.Debug("Console read: " + err.Error())
		return
	}
	for _, c := range s.buf[:n] {
		s.write(fmt.Sprintf("Received: %c\r\n", c))
	}
}

func (s *Serial) HostAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return false
	}
	bits, err := s.conn.GetModemStatusBits()
	if err != nil {
		return false
	}
	return bits.DSR
}

func (s *Serial) Print(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(msg)
}

// write must be called with mu held. Errors are dropped.
func (s *Serial) write(msg string) {
	if s.conn == nil {
		return
	}
	if _, err := s.conn.Write([]byte(msg)); err != nil {
		logger.Debug("Console write: " + err.Error())
	}
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPkg, s.name, err)
	}
	return nil
}
