package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michcald/foxgeig/frame"
	"github.com/michcald/foxgeig/geiger"
)

// --- Mocks ---

type mockRadio struct {
	mu    sync.Mutex
	calls []string
	sent  [][]byte
	upErr error
	txErr error
}

func (m *mockRadio) PowerUp() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *mockRadio) PowerDown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "down")
	return nil
}

func (m *mockRadio) Transmit(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "tx")
	if m.txErr != nil {
		return m.txErr
	}
	m.sent = append(m.sent, append([]byte(nil), p...))
	return nil
}

func (m *mockRadio) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockADC struct {
	value   uint16
	err     error
	calls   []string
	channel uint8
}

func (m *mockADC) Select(channel uint8) error {
	m.calls = append(m.calls, "select")
	m.channel = channel
	return nil
}

func (m *mockADC) Power(on bool) error {
	if on {
		m.calls = append(m.calls, "on")
	} else {
		m.calls = append(m.calls, "off")
	}
	return nil
}

func (m *mockADC) Start() error {
	m.calls = append(m.calls, "start")
	return nil
}

func (m *mockADC) Read() (uint16, error) {
	m.calls = append(m.calls, "read")
	return m.value, m.err
}

type mockConsole struct {
	mu       sync.Mutex
	attached bool
	printed  []string
	services int
}

func (m *mockConsole) Init() error { return nil }

func (m *mockConsole) Service() {
	m.mu.Lock()
	m.services++
	m.mu.Unlock()
}

func (m *mockConsole) HostAttached() bool { return m.attached }

func (m *mockConsole) Print(s string) {
	m.mu.Lock()
	m.printed = append(m.printed, s)
	m.mu.Unlock()
}

func (m *mockConsole) serviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services
}

type mockWatchdog struct {
	mu    sync.Mutex
	feeds int
}

func (m *mockWatchdog) Feed() {
	m.mu.Lock()
	m.feeds++
	m.mu.Unlock()
}

func (m *mockWatchdog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeds
}

type mockStore struct {
	id, check byte
	err       error
}

func (m mockStore) ReadIdentity() (byte, byte, error) { return m.id, m.check, m.err }

func newTestNode(t *testing.T, cfg Config, deps Deps) *Node {
	t.Helper()
	n, err := New(cfg, deps)
	require.NoError(t, err)
	return n
}

// --- Tests ---

func TestNewRequiresRadioAndADC(t *testing.T) {
	_, err := New(Config{}, Deps{ADC: &mockADC{}})
	assert.ErrorIs(t, err, ErrPkg)

	_, err = New(Config{}, Deps{Radio: &mockRadio{}})
	assert.ErrorIs(t, err, ErrPkg)
}

func TestNextInterval(t *testing.T) {
	tests := []struct {
		sample uint16
		want   uint32
	}{
		{0, 4},
		{1, 5},
		{2, 5},
		{3, 6},
		{800, 4},
		{801, 5},
		{1022, 5},
		{1023, 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextInterval(tt.sample), "sample %d", tt.sample)
	}
}

func TestFirstCycleTransmitsImmediately(t *testing.T) {
	radio := &mockRadio{}
	adc := &mockADC{value: 800}
	n := newTestNode(t, Config{SensorID: 3}, Deps{Radio: radio, ADC: adc})

	require.True(t, n.cycle())

	require.Len(t, radio.sent, 1)
	want := frame.Build(3, frame.NoData, frame.NoData, 200)
	assert.Equal(t, want.Bytes(), radio.sent[0])
	assert.Equal(t, []string{"up", "tx", "down"}, radio.calls)

	assert.Equal(t, []string{"on", "select", "start", "read", "off"}, adc.calls)
	assert.Equal(t, uint8(DefaultBatteryChannel), adc.channel)

	stats := n.Stats()
	assert.Equal(t, uint32(1), stats.PacketsSent)
	assert.Equal(t, uint32(0), stats.TransmitErrors)
	assert.Equal(t, want, stats.LastFrame)
	assert.Equal(t, uint16(800), stats.LastBattery)
}

func TestCycleWaitsForInterval(t *testing.T) {
	radio := &mockRadio{}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 803}})

	require.True(t, n.cycle())

	// 803 & 3 == 3, next frame after 6 ticks.
	for i := 0; i < 5; i++ {
		n.OnTick()
		assert.False(t, n.cycle(), "tick %d", i+1)
	}
	n.OnTick()
	assert.True(t, n.cycle())
	assert.Equal(t, 2, radio.sentCount())
}

func TestCycleAcrossTickWrap(t *testing.T) {
	radio := &mockRadio{}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 800}})

	n.booted = true
	n.lastCycle = 0xFFFFFFFE
	n.interval = 4

	// The counter is at 0, two ticks past the last cycle.
	assert.False(t, n.cycle())
	n.OnTick()
	assert.False(t, n.cycle())
	n.OnTick()
	assert.True(t, n.cycle())
	assert.Equal(t, uint32(2), n.lastCycle)
}

func TestCycleReportsAverages(t *testing.T) {
	radio := &mockRadio{}
	counter := geiger.NewCounter(4)
	n := newTestNode(t, Config{SensorID: 9}, Deps{Radio: radio, ADC: &mockADC{value: 512}, Counter: counter})

	for _, pulses := range []int{10, 20} {
		for i := 0; i < pulses; i++ {
			n.OnPulse()
		}
		for i := 0; i < geiger.TicksPerFold; i++ {
			n.OnTick()
		}
	}

	require.True(t, n.cycle())
	require.Len(t, radio.sent, 1)

	f := frame.Frame(radio.sent[0])
	assert.True(t, f.Valid())
	assert.Equal(t, byte(9), f.SensorID())
	assert.Equal(t, uint32(30), f.ShortTerm())
	assert.Equal(t, uint32(30), f.LongTerm())
	assert.Equal(t, byte(128), f.Battery())
}

func TestTransmitErrorIsCounted(t *testing.T) {
	radio := &mockRadio{txErr: errors.New("timeout")}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 800}})

	require.True(t, n.cycle())

	assert.Equal(t, []string{"up", "tx", "down"}, radio.calls)
	stats := n.Stats()
	assert.Equal(t, uint32(0), stats.PacketsSent)
	assert.Equal(t, uint32(1), stats.TransmitErrors)

	// Not retried before the next interval.
	assert.False(t, n.cycle())
}

func TestPowerUpErrorSkipsTransmit(t *testing.T) {
	radio := &mockRadio{upErr: errors.New("not ready")}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{}})

	require.True(t, n.cycle())

	assert.Equal(t, []string{"up", "down"}, radio.calls)
	assert.Equal(t, uint32(1), n.Stats().TransmitErrors)
}

func TestBatteryReadFailure(t *testing.T) {
	radio := &mockRadio{}
	adc := &mockADC{value: 999, err: errors.New("i2c")}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: adc})

	require.True(t, n.cycle())

	f := frame.Frame(radio.sent[0])
	assert.Equal(t, byte(0), f.Battery())
	assert.Equal(t, "off", adc.calls[len(adc.calls)-1], "ADC must be powered off")
	assert.Equal(t, uint32(4), n.interval)
}

func TestBatterySampleIsClamped(t *testing.T) {
	radio := &mockRadio{}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 4095}})

	require.True(t, n.cycle())

	f := frame.Frame(radio.sent[0])
	assert.Equal(t, byte(0xFF), f.Battery())
	assert.Equal(t, uint16(1023), n.Stats().LastBattery)
	assert.Equal(t, NextInterval(4095), n.interval)
}

func TestIntervalUsesRawSample(t *testing.T) {
	for _, v := range []uint16{1024, 1025, 1026, 1027, 0xFFFF} {
		n := newTestNode(t, Config{}, Deps{Radio: &mockRadio{}, ADC: &mockADC{value: v}})

		require.True(t, n.cycle())
		assert.Equal(t, NextInterval(v), n.interval, "sample %d", v)
		assert.Equal(t, uint16(1023), n.Stats().LastBattery, "sample %d", v)
	}
}

func TestConsoleOutput(t *testing.T) {
	t.Run("host attached", func(t *testing.T) {
		console := &mockConsole{attached: true}
		n := newTestNode(t, Config{}, Deps{Radio: &mockRadio{}, ADC: &mockADC{value: 800}, Console: console})

		require.True(t, n.cycle())
		assert.Equal(t, []string{" TX ", "cpm1=- cpm60=- bat=5.16V tx=1\r\n"}, console.printed)
	})

	t.Run("no host", func(t *testing.T) {
		console := &mockConsole{}
		n := newTestNode(t, Config{}, Deps{Radio: &mockRadio{}, ADC: &mockADC{value: 800}, Console: console})

		require.True(t, n.cycle())
		assert.Equal(t, []string{" TX "}, console.printed)
	})

	t.Run("transmit timeout", func(t *testing.T) {
		console := &mockConsole{attached: true}
		radio := &mockRadio{txErr: errors.New("rfm69: timeout waiting for packet sent")}
		n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 800}, Console: console})

		require.True(t, n.cycle())
		assert.Equal(t, []string{
			" TX ",
			" TX failed: rfm69: timeout waiting for packet sent\r\n",
			"cpm1=- cpm60=- bat=5.16V tx=0\r\n",
		}, console.printed)
	})
}

func TestRunSendsOnTicks(t *testing.T) {
	radio := &mockRadio{}
	watchdog := &mockWatchdog{}
	n := newTestNode(t, Config{}, Deps{Radio: radio, ADC: &mockADC{value: 800}, Watchdog: watchdog})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return radio.sentCount() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 4; i++ {
		n.OnTick()
	}
	require.Eventually(t, func() bool { return radio.sentCount() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Greater(t, watchdog.count(), 0)
}

func TestRunPollsConsoleWhileHostAttached(t *testing.T) {
	console := &mockConsole{attached: true}
	n := newTestNode(t, Config{ConsolePoll: time.Millisecond}, Deps{
		Radio:   &mockRadio{},
		ADC:     &mockADC{value: 800},
		Console: console,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	// No events arrive, the loop must still come around.
	require.Eventually(t, func() bool { return console.serviceCount() >= 5 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestResolveSensorID(t *testing.T) {
	tests := []struct {
		name  string
		store IdentityStore
		want  byte
	}{
		{"no store", nil, DefaultSensorID},
		{"valid", mockStore{id: 7, check: 0xF8}, 7},
		{"bad check", mockStore{id: 7, check: 0xF7}, DefaultSensorID},
		{"erased", mockStore{id: 0xFF, check: 0xFF}, DefaultSensorID},
		{"zero", mockStore{id: 0x00, check: 0xFF}, 0},
		{"read error", mockStore{id: 7, check: 0xF8, err: errors.New("io")}, DefaultSensorID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSensorID(tt.store, DefaultSensorID))
		})
	}
}

func TestSoftWatchdogExpires(t *testing.T) {
	expired := make(chan struct{}, 1)
	w := NewSoftWatchdog(20*time.Millisecond, func() { expired <- struct{}{} })
	defer w.Stop()

	// Disarmed until started.
	select {
	case <-expired:
		t.Fatal("watchdog expired before Start")
	case <-time.After(50 * time.Millisecond):
	}
	w.Start()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not expire")
	}
}

func TestSoftWatchdogFeedAndStop(t *testing.T) {
	var mu sync.Mutex
	expired := 0
	w := NewSoftWatchdog(50*time.Millisecond, func() {
		mu.Lock()
		expired++
		mu.Unlock()
	})
	w.Start()

	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		w.Feed()
	}
	w.Stop()
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, expired)
}

func TestTickSource(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	src := NewTickSource(2*time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	src.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 3
	}, time.Second, time.Millisecond)

	src.Stop()
	src.Stop()

	mu.Lock()
	stopped := ticks
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, stopped, ticks)
}
