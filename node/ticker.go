package node

import (
	"sync"
	"time"
)

// TickSource calls a function at a fixed period from its own goroutine. It
// plays the role of the periodic timer interrupt.
type TickSource struct {
	period time.Duration
	onTick func()

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// NewTickSource returns a stopped tick source. A zero period uses
// DefaultTickPeriod.
func NewTickSource(period time.Duration, onTick func()) *TickSource {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &TickSource{
		period: period,
		onTick: onTick,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the tick goroutine. It must be called at most once.
func (t *TickSource) Start() {
	go t.run()
}

func (t *TickSource) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.onTick()
		}
	}
}

// Stop stops the ticks and waits for the goroutine to exit. It is safe to
// call more than once, but only after Start.
func (t *TickSource) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
