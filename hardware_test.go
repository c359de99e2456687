//go:build !tinygo

package foxgeig

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/michcald/foxgeig/config"
	"github.com/michcald/foxgeig/hal"
	"github.com/michcald/foxgeig/node"
)

// --- Mocks ---

type mockPin struct {
	mu      sync.Mutex
	pull    hal.Pull
	edge    hal.Edge
	handler func()
	watched bool
}

func (m *mockPin) Out(hal.Level) error { return nil }

func (m *mockPin) In(pull hal.Pull) error {
	m.pull = pull
	return nil
}

func (m *mockPin) Read() hal.Level { return hal.High }

func (m *mockPin) Watch(edge hal.Edge, handler func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edge = edge
	m.handler = handler
	m.watched = true
	return nil
}

func (m *mockPin) Unwatch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched = false
	return nil
}

func (m *mockPin) fire() {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h()
}

type mockRadio struct {
	mu   sync.Mutex
	sent int
}

func (m *mockRadio) PowerUp() error   { return nil }
func (m *mockRadio) PowerDown() error { return nil }

func (m *mockRadio) Transmit([]byte) error {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	return nil
}

func (m *mockRadio) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type mockADC struct{}

func (mockADC) Select(uint8) error    { return nil }
func (mockADC) Power(bool) error      { return nil }
func (mockADC) Start() error          { return nil }
func (mockADC) Read() (uint16, error) { return 800, nil }

type mockCloser struct {
	name  string
	order *[]string
	err   error
}

func (m *mockCloser) Close() error {
	*m.order = append(*m.order, m.name)
	return m.err
}

// --- Tests ---

func TestParseEdge(t *testing.T) {
	tests := []struct {
		in   string
		want hal.Edge
		ok   bool
	}{
		{"rising", hal.RisingEdge, true},
		{"Falling", hal.FallingEdge, true},
		{" both ", hal.BothEdges, true},
		{"", hal.FallingEdge, true},
		{"up", hal.NoEdge, false},
	}
	for _, tt := range tests {
		got, err := ParseEdge(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, ErrPkg, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConfigConversion(t *testing.T) {
	cfg := config.Default()
	cfg.SetIdentity(17)
	cfg.Hardware.ADCInput = 2

	rc := radioConfig(cfg.Radio)
	assert.Equal(t, uint32(868300000), rc.FrequencyHz)
	assert.Equal(t, []byte{0x2D, 0xD4}, rc.SyncWord)
	assert.Equal(t, 10000, rc.RetryBudget)

	nc := nodeConfig(cfg)
	assert.Equal(t, byte(17), nc.SensorID)
	assert.Equal(t, uint8(12), nc.BatteryChannel)
	assert.Equal(t, uint32(5), nc.BaseInterval)

	ao := adcOptions(cfg)
	assert.Equal(t, uint16(0x48), ao.Address)
	assert.Equal(t, map[uint8]ads1x15.Channel{12: ads1x15.Channel2}, ao.Channels)
	assert.InDelta(t, float64(3300*physic.MilliVolt), float64(ao.FullScale), float64(physic.MicroVolt))
}

func TestSystemRun(t *testing.T) {
	radio := &mockRadio{}
	n, err := node.New(node.Config{}, node.Deps{Radio: radio, ADC: mockADC{}})
	require.NoError(t, err)

	pin := &mockPin{}
	started, stopped := false, false
	s := &System{
		node:          n,
		pulse:         pin,
		edge:          hal.RisingEdge,
		tickPeriod:    time.Hour,
		startWatchdog: func() error { started = true; return nil },
		stopWatchdog:  func() { stopped = true },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first frame goes out at once.
	require.Eventually(t, func() bool { return radio.count() == 1 }, time.Second, time.Millisecond)

	pin.fire()
	pin.fire()
	assert.Equal(t, uint16(2), n.Counter().Current())

	for i := 0; i < 4; i++ {
		n.OnTick()
	}
	require.Eventually(t, func() bool { return radio.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, hal.PullUp, pin.pull)
	assert.Equal(t, hal.RisingEdge, pin.edge)
	assert.False(t, pin.watched, "pulse pin must be released")
	assert.True(t, started)
	assert.True(t, stopped)
}

func TestSystemClose(t *testing.T) {
	var order []string
	closeErr := errors.New("busy")
	s := &System{closers: []io.Closer{
		&mockCloser{name: "radio", order: &order},
		&mockCloser{name: "i2c", order: &order, err: closeErr},
		&mockCloser{name: "console", order: &order},
	}}

	err := s.Close()
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, []string{"console", "i2c", "radio"}, order)

	assert.NoError(t, s.Close())
}
