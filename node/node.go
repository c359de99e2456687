// Package node runs the telemetry control loop: it reads the pulse averages
// and the battery, sends a frame over the radio every few ticks and sleeps
// in between.
//
// Pulse and tick events arrive through OnPulse and OnTick, which stand in
// for the interrupt handlers of the board. Each of them wakes the loop, which
// decides on its own whether a transmission is due. The loop never holds a
// lock across I/O.
package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/michcald/foxgeig/frame"
	"github.com/michcald/foxgeig/geiger"
	"github.com/michcald/foxgeig/logger"
)

var ErrPkg = errors.New("node")

const (
	// DefaultBatteryChannel is the ADC input wired to the battery divider.
	DefaultBatteryChannel = 12
	// DefaultBaseInterval is the nominal number of ticks between frames.
	DefaultBaseInterval = 5
	// DefaultTickPeriod is the period of the tick source.
	DefaultTickPeriod = 6 * time.Second
	// DefaultWatchdogTimeout is the watchdog deadline.
	DefaultWatchdogTimeout = 8 * time.Second
	// DefaultConsolePoll is how often the loop wakes up while a host is
	// attached to the console.
	DefaultConsolePoll = 100 * time.Millisecond
	// DefaultBatteryFullScale is the battery voltage at the top ADC code.
	DefaultBatteryFullScale = 6.6

	adcMax = 1023
)

type Config struct {
	// SensorID is sent in every frame.
	// Use ResolveSensorID to get it from persisted storage.
	SensorID byte
	// BatteryChannel is the ADC channel of the battery.
	// Defaults to DefaultBatteryChannel if not provided.
	BatteryChannel uint8
	// BaseInterval is the nominal number of ticks between frames. The actual
	// interval varies by one tick depending on the battery reading.
	// Defaults to DefaultBaseInterval if not provided.
	BaseInterval uint32
	// ConsolePoll is the loop period while a host is attached.
	// Defaults to DefaultConsolePoll if not provided.
	ConsolePoll time.Duration
	// BatteryFullScale converts ADC codes to volts for the status line.
	// Defaults to DefaultBatteryFullScale if not provided.
	BatteryFullScale float32
}

func (c *Config) applyDefaults() {
	if c.BatteryChannel == 0 {
		c.BatteryChannel = DefaultBatteryChannel
	}
	if c.BaseInterval < 2 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.ConsolePoll <= 0 {
		c.ConsolePoll = DefaultConsolePoll
	}
	if c.BatteryFullScale <= 0 {
		c.BatteryFullScale = DefaultBatteryFullScale
	}
}

// Deps are the collaborators of the node.
type Deps struct {
	// Radio sends the frames. Required.
	Radio Radio
	// ADC samples the battery. Required.
	ADC ADC
	// Counter holds the pulse history.
	// Optional. If not provided, a counter with geiger.DefaultCapacity is used.
	Counter *geiger.Counter
	// Console is the debug link.
	// Optional.
	Console Console
	// Watchdog is fed on every loop iteration.
	// Optional.
	Watchdog Watchdog
}

// Stats are the node's counters since boot.
type Stats struct {
	PacketsSent    uint32
	TransmitErrors uint32
	LastFrame      frame.Frame
	LastBattery    uint16
}

// Node is the control loop.
type Node struct {
	cfg      Config
	counter  *geiger.Counter
	radio    Radio
	adc      ADC
	console  Console
	watchdog Watchdog

	wake chan struct{}

	// Owned by the loop goroutine.
	booted    bool
	lastCycle uint32
	interval  uint32

	mu    sync.Mutex
	stats Stats
}

// New creates a node. Nothing is touched until Run is called.
func New(cfg Config, deps Deps) (*Node, error) {
	if deps.Radio == nil {
		return nil, fmt.Errorf("%w: radio not configured", ErrPkg)
	}
	if deps.ADC == nil {
		return nil, fmt.Errorf("%w: ADC not configured", ErrPkg)
	}
	cfg.applyDefaults()

	n := &Node{
		cfg:      cfg,
		counter:  deps.Counter,
		radio:    deps.Radio,
		adc:      deps.ADC,
		console:  deps.Console,
		watchdog: deps.Watchdog,
		wake:     make(chan struct{}, 1),
		interval: cfg.BaseInterval,
	}
	if n.counter == nil {
		n.counter = geiger.NewCounter(geiger.DefaultCapacity)
	}
	if n.console == nil {
		n.console = nopConsole{}
	}
	if n.watchdog == nil {
		n.watchdog = nopWatchdog{}
	}
	return n, nil
}

// Counter returns the pulse counter the node reports from.
func (n *Node) Counter() *geiger.Counter {
	return n.counter
}

// OnPulse records a tube pulse. Safe to call from any goroutine.
func (n *Node) OnPulse() {
	n.counter.Pulse()
	n.signal()
}

// OnTick advances the tick counter. Safe to call from any goroutine.
func (n *Node) OnTick() {
	n.counter.Tick()
	n.signal()
}

func (n *Node) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the node's counters.
// This method is concurrent safe.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Run runs the control loop until ctx is done. The first frame goes out
// right away.
func (n *Node) Run(ctx context.Context) error {
	if err := n.console.Init(); err != nil {
		logger.Warn("Console init failed: " + err.Error())
	}
	logger.Info("Node running, sensor id " + strconv.Itoa(int(n.cfg.SensorID)))

	poll := time.NewTimer(n.cfg.ConsolePoll)
	defer poll.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n.cycle()
		n.console.Service()

		if !n.console.HostAttached() {
			n.watchdog.Feed()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-n.wake:
			}
			continue
		}

		if !poll.Stop() {
			select {
			case <-poll.C:
			default:
			}
		}
		poll.Reset(n.cfg.ConsolePoll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.wake:
		case <-poll.C:
		}
	}
}

// cycle sends a frame if one is due and reports whether it did.
func (n *Node) cycle() bool {
	n.watchdog.Feed()

	ticks := n.counter.Ticks()
	if n.booted && ticks-n.lastCycle < n.interval {
		return false
	}
	n.booted = true

	sample := n.report()
	n.lastCycle = ticks
	n.interval = intervalFor(n.cfg.BaseInterval, sample)
	return true
}

// report sends one frame. It returns the raw battery sample, which picks
// the next interval.
func (n *Node) report() uint16 {
	n.startBattery()
	short := n.counter.ShortTermAverage()
	long := n.counter.LongTermAverage()
	sample := n.readBattery()
	level := min(sample, adcMax)

	f := frame.Build(n.cfg.SensorID, wireValue(short), wireValue(long), byte(level>>2))
	n.console.Print(" TX ")
	err := n.send(f)
	if err != nil {
		n.console.Print(" TX failed: " + err.Error() + "\r\n")
	}

	n.mu.Lock()
	if err != nil {
		n.stats.TransmitErrors++
	} else {
		n.stats.PacketsSent++
	}
	n.stats.LastFrame = f
	n.stats.LastBattery = level
	packets := n.stats.PacketsSent
	n.mu.Unlock()

	if n.console.HostAttached() {
		n.console.Print(n.statusLine(short, long, level, packets))
	}
	return sample
}

func (n *Node) send(f frame.Frame) error {
	if err := n.radio.PowerUp(); err != nil {
		logger.Warn("Radio power up failed: " + err.Error())
		_ = n.radio.PowerDown()
		return err
	}
	err := n.radio.Transmit(f.Bytes())
	if err != nil {
		logger.Warn("Transmit failed: " + err.Error())
	} else {
		logger.Debug("Sent " + f.String())
	}
	if derr := n.radio.PowerDown(); derr != nil {
		logger.Warn("Radio power down failed: " + derr.Error())
	}
	return err
}

func (n *Node) startBattery() {
	if err := n.adc.Power(true); err != nil {
		logger.Warn("ADC power on failed: " + err.Error())
		return
	}
	if err := n.adc.Select(n.cfg.BatteryChannel); err != nil {
		logger.Warn("ADC select failed: " + err.Error())
		return
	}
	if err := n.adc.Start(); err != nil {
		logger.Warn("ADC start failed: " + err.Error())
	}
}

// readBattery returns the raw conversion started by startBattery, 0 on
// failure.
func (n *Node) readBattery() uint16 {
	defer func() {
		if err := n.adc.Power(false); err != nil {
			logger.Warn("ADC power off failed: " + err.Error())
		}
	}()
	v, err := n.adc.Read()
	if err != nil {
		logger.Warn("ADC read failed: " + err.Error())
		return 0
	}
	return v
}

func (n *Node) statusLine(short, long geiger.Average, sample uint16, packets uint32) string {
	volts := float32(sample) * n.cfg.BatteryFullScale / adcMax
	return "cpm1=" + formatAverage(short) +
		" cpm60=" + formatAverage(long) +
		" bat=" + strconv.FormatFloat(float64(volts), 'f', 2, 32) + "V" +
		" tx=" + strconv.FormatUint(uint64(packets), 10) + "\r\n"
}

func formatAverage(a geiger.Average) string {
	if !a.Valid {
		return "-"
	}
	return strconv.FormatUint(uint64(a.Value), 10)
}

func wireValue(a geiger.Average) uint32 {
	if !a.Valid {
		return frame.NoData
	}
	return a.Value
}

// NextInterval returns the number of ticks until the next frame for the
// default base interval. The low two bits of the battery sample jitter the
// schedule by one tick.
func NextInterval(sample uint16) uint32 {
	return intervalFor(DefaultBaseInterval, sample)
}

func intervalFor(base uint32, sample uint16) uint32 {
	switch sample & 3 {
	case 0:
		return base - 1
	case 3:
		return base + 1
	default:
		return base
	}
}
