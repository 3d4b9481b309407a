package rtkernel

import (
	"sync"
	"time"
)

type (
	// TickSource drives the kernel's time base. Start begins delivering
	// ticks to the kernel, Stop ceases delivery. SetDeadline is the
	// next-deadline compare register: the kernel re-programs it whenever the
	// head of the delayed queue changes; ticked sources may ignore it.
	TickSource interface {
		Start(k *Kernel)
		Stop()
		SetDeadline(abs Cnt)
	}

	// CounterSource is a TickSource that is itself the counter (tickless
	// mode): the kernel reads Now instead of incrementing on each tick.
	CounterSource interface {
		TickSource
		Now() Cnt
	}
)

// ManualClock is a test-oriented tick source: nothing ticks until Advance is
// called. The zero value is ready to use once started.
type ManualClock struct {
	mu sync.Mutex
	k  *Kernel
}

// Start attaches the clock to a kernel.
func (c *ManualClock) Start(k *Kernel) {
	c.mu.Lock()
	c.k = k
	c.mu.Unlock()
}

// Stop detaches the clock.
func (c *ManualClock) Stop() {
	c.mu.Lock()
	c.k = nil
	c.mu.Unlock()
}

// SetDeadline is a no-op; a manual clock ticks only when told to.
func (c *ManualClock) SetDeadline(Cnt) {}

// Advance delivers n ticks to the kernel, one at a time, so every expiry and
// round-robin boundary in between is observed.
func (c *ManualClock) Advance(n Cnt) {
	c.mu.Lock()
	k := c.k
	c.mu.Unlock()
	if k == nil {
		panic(`rtkernel: manual clock not started`)
	}
	for ; n > 0; n-- {
		k.Tick()
	}
}

// PeriodicClock delivers ticks at a fixed frequency from a background
// goroutine, the ticked-mode hardware timer.
type PeriodicClock struct {
	// Hz is the tick frequency. Defaults to 1000 if zero.
	Hz uint

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Start begins periodic tick delivery.
func (c *PeriodicClock) Start(k *Kernel) {
	hz := c.Hz
	if hz == 0 {
		hz = 1000
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(time.Second / time.Duration(hz))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				k.Tick()
			}
		}
	}(c.stop, c.done)
}

// Stop ceases tick delivery, waiting for the delivery goroutine to exit.
func (c *PeriodicClock) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// SetDeadline is a no-op; a periodic clock interrupts every tick regardless.
func (c *PeriodicClock) SetDeadline(Cnt) {}

// TicklessClock derives the counter from wall time and programs a single
// timer for the next deadline instead of interrupting every tick: the
// free-running hardware timer is the counter.
type TicklessClock struct {
	// Hz is the counter frequency. Defaults to 1000 if zero.
	Hz uint

	mu      sync.Mutex
	k       *Kernel
	anchor  time.Time
	tick    time.Duration
	timer   *time.Timer
	stopped bool
}

// Start anchors the counter at zero and begins deadline service.
func (c *TicklessClock) Start(k *Kernel) {
	hz := c.Hz
	if hz == 0 {
		hz = 1000
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.k = k
	c.anchor = time.Now()
	c.tick = time.Second / time.Duration(hz)
	c.stopped = false
}

// Stop cancels any programmed deadline.
func (c *TicklessClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Now returns the current counter value: elapsed wall time in ticks.
func (c *TicklessClock) Now() Cnt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *TicklessClock) nowLocked() Cnt {
	if c.anchor.IsZero() {
		return 0
	}
	return Cnt(time.Since(c.anchor) / c.tick)
}

// SetDeadline programs the compare register: a single timer fires the
// kernel's tick handler when the counter reaches abs. Infinite cancels.
func (c *TicklessClock) SetDeadline(abs Cnt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.stopped || c.k == nil || abs == Infinite {
		return
	}

	k := c.k
	now := c.nowLocked()
	var wait time.Duration
	if abs > now {
		wait = time.Duration(abs-now) * c.tick
	}
	c.timer = time.AfterFunc(wait, k.Tick)
}
