// Package geiger turns pulses from a Geiger-Müller tube into per-minute
// averages.
//
// Pulse and Tick are meant to be called from interrupt handlers (or the
// goroutines standing in for them). Every TicksPerFold ticks the pulses seen
// since the previous fold are written into a circular history of 30 second
// slots. The readers take a consistent snapshot of that history while the
// producers are held off for the duration of the copy only.
package geiger

import (
	"sync"
)

const (
	// Invalid marks a history slot that has not been collected yet.
	Invalid uint16 = 0xFFFF
	// MaxCount is the largest pulse count a slot can hold. Counting
	// saturates here so a busy interval never turns into Invalid.
	MaxCount uint16 = Invalid - 1

	// TicksPerFold is the number of timer ticks (6 s each) per history slot.
	TicksPerFold = 5
	// SlotsPerMinute converts a per-slot count into counts per minute.
	SlotsPerMinute = 2
	// DefaultCapacity keeps one hour of 30 second slots.
	DefaultCapacity = 60 * SlotsPerMinute

	shortTermSlots = SlotsPerMinute
)

// Average is a counts-per-minute value that may be absent when not enough
// history has been collected.
type Average struct {
	Value uint32
	Valid bool
}

// NoData is the absent average.
var NoData = Average{}

// Counter accumulates pulses and keeps the interval history.
type Counter struct {
	mu sync.Mutex

	current uint16
	ticks   uint32
	phase   uint8

	history    []uint16
	writeIndex int
}

// NewCounter returns a counter with a history of capacity slots, all marked
// Invalid. A capacity below the short term window uses DefaultCapacity.
func NewCounter(capacity int) *Counter {
	if capacity < shortTermSlots {
		capacity = DefaultCapacity
	}
	c := &Counter{history: make([]uint16, capacity)}
	for i := range c.history {
		c.history[i] = Invalid
	}
	return c
}

// Pulse records one pulse edge.
func (c *Counter) Pulse() {
	c.mu.Lock()
	if c.current < MaxCount {
		c.current++
	}
	c.mu.Unlock()
}

// Tick advances the tick counter and folds the current interval into the
// history on every TicksPerFold-th call.
func (c *Counter) Tick() {
	c.mu.Lock()
	c.ticks++
	c.phase++
	if c.phase == TicksPerFold {
		c.phase = 0
		c.fold()
	}
	c.mu.Unlock()
}

// fold must be called with mu held.
func (c *Counter) fold() {
	c.history[c.writeIndex] = c.current
	c.current = 0
	c.writeIndex++
	if c.writeIndex == len(c.history) {
		c.writeIndex = 0
	}
}

// Ticks returns the number of ticks since boot. The value wraps at 2^32;
// differences computed with unsigned arithmetic stay correct across the wrap.
func (c *Counter) Ticks() uint32 {
	c.mu.Lock()
	t := c.ticks
	c.mu.Unlock()
	return t
}

// Current returns the pulses counted since the last fold.
func (c *Counter) Current() uint16 {
	c.mu.Lock()
	n := c.current
	c.mu.Unlock()
	return n
}

// Capacity returns the number of history slots.
func (c *Counter) Capacity() int {
	return len(c.history)
}

// ShortTermAverage returns the counts per minute over the last minute.
func (c *Counter) ShortTermAverage() Average {
	return c.average(shortTermSlots, 1)
}

// LongTermAverage returns the counts per minute over the whole history. At
// least half of the slots must hold data, otherwise the result is NoData.
func (c *Counter) LongTermAverage() Average {
	n := len(c.history)
	return c.average(n, n/2)
}

// History returns a copy of the history buffer and the index of the slot
// that will be written next.
func (c *Counter) History() ([]uint16, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.history))
	copy(out, c.history)
	return out, c.writeIndex
}

// average walks back from the newest slot over window slots. It returns
// NoData unless at least minValid of them are valid.
func (c *Counter) average(window, minValid int) Average {
	var sum uint32
	var valid int

	c.mu.Lock()
	pos := c.writeIndex
	for i := 0; i < window; i++ {
		if pos == 0 {
			pos = len(c.history)
		}
		pos--
		if v := c.history[pos]; v != Invalid {
			sum += uint32(v)
			valid++
		}
	}
	c.mu.Unlock()

	if valid == 0 || valid < minValid {
		return NoData
	}
	// sum is at most 120 * 0xFFFE, so the scaled value fits in 32 bits.
	scaled := sum * SlotsPerMinute
	return Average{
		Value: (scaled + uint32(valid)/2) / uint32(valid),
		Valid: true,
	}
}
