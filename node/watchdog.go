package node

import (
	"sync"
	"time"

	"github.com/michcald/foxgeig/logger"
)

// SoftWatchdog is a Watchdog for hosts without a hardware one. Once started,
// it calls OnExpire if it is not fed within the timeout.
type SoftWatchdog struct {
	timeout  time.Duration
	onExpire func()

	mu      sync.Mutex
	timer   *time.Timer
	armed   bool
	stopped bool
}

// NewSoftWatchdog returns a disarmed watchdog. A zero timeout uses
// DefaultWatchdogTimeout. onExpire runs on its own goroutine and usually
// terminates the process.
func NewSoftWatchdog(timeout time.Duration, onExpire func()) *SoftWatchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	w := &SoftWatchdog{timeout: timeout, onExpire: onExpire}
	w.timer = time.AfterFunc(timeout, w.expire)
	w.timer.Stop()
	return w
}

// Start arms the watchdog.
func (w *SoftWatchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.armed {
		return
	}
	w.armed = true
	w.timer.Reset(w.timeout)
}

func (w *SoftWatchdog) expire() {
	w.mu.Lock()
	armed := w.armed
	w.mu.Unlock()
	if !armed {
		return
	}
	logger.Error("Watchdog expired")
	if w.onExpire != nil {
		w.onExpire()
	}
}

// Feed pushes the deadline out by the timeout. It does nothing unless the
// watchdog is armed.
func (w *SoftWatchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop disarms the watchdog for good.
func (w *SoftWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	w.stopped = true
	w.timer.Stop()
}
