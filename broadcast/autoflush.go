package broadcast

import (
	"sync"
	"time"
)

// autoFlush starts a flush timer the first time activity is noted after an
// idle period, calling the given flush function once the interval elapses
// — the same "first job arrives, start the timer" shape as the teacher's
// microbatch.Batcher flush-interval handling, simplified here since
// broadcast coalesces by dataflow key rather than by job slice.
type autoFlush struct {
	interval time.Duration
	flush    func() error

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newAutoFlush(interval time.Duration, flush func() error) *autoFlush {
	return &autoFlush{interval: interval, flush: flush}
}

// noteActivity arms the timer if it is not already running.
func (a *autoFlush) noteActivity() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.timer != nil {
		return
	}
	a.timer = time.AfterFunc(a.interval, a.fire)
}

func (a *autoFlush) fire() {
	a.mu.Lock()
	a.timer = nil
	stopped := a.stopped
	a.mu.Unlock()
	if !stopped {
		_ = a.flush()
	}
}

// stop cancels any pending timer and prevents future arming.
func (a *autoFlush) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
