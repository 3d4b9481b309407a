package rtkernel

import "sync/atomic"

// Timer is a delayed-queue citizen alongside waiting tasks: it fires when
// its deadline expires, runs its callback synchronously inside the tick
// handler, re-queues itself while periodic, and wakes every task waiting on
// it with Success.
//
// The callback runs under the kernel critical section, in interrupt
// context: it may use the non-blocking kernel surface (Give, Push, Take,
// timer restarts) but must not block.
type Timer struct {
	object
	k      *Kernel
	fn     func()
	period Cnt
	id     uint64
}

var timerIDCounter atomic.Uint64

// NewTimer creates a stopped timer with an optional callback.
func NewTimer(k *Kernel, fn func()) *Timer {
	t := &Timer{}
	t.Init(k, fn)
	return t
}

// Init initialises a statically allocated timer; see [NewTimer].
func (t *Timer) Init(k *Kernel, fn func()) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*t = Timer{k: k, fn: fn, id: timerIDCounter.Add(1)}
	t.object.tmr = t
}

// StartFor arms the timer to fire once, delay ticks from now. Re-arming a
// running timer replaces its deadline.
func (t *Timer) StartFor(delay Cnt) { t.start(delay, 0, false, 0) }

// StartUntil arms the timer to fire once when the counter reaches abs.
func (t *Timer) StartUntil(abs Cnt) { t.start(0, 0, true, abs) }

// StartPeriodic arms the timer to fire after delay ticks and then every
// period ticks. Panics on a zero period.
func (t *Timer) StartPeriodic(delay, period Cnt) {
	if period == 0 {
		panic(`rtkernel: zero timer period`)
	}
	t.start(delay, period, false, 0)
}

func (t *Timer) start(delay, period Cnt, until bool, abs Cnt) {
	k := t.k
	self := k.lock()
	defer k.unlock(self)

	k.tmrRemove(&t.object)
	t.object.start = k.now()
	if until {
		delay = k.sub(abs, t.object.start)
	}
	t.object.delay = delay
	t.period = period
	k.tmrEnqueue(&t.object, idTimer)
}

// Stop disarms the timer. Tasks waiting on it stay parked until it is
// re-armed or killed.
func (t *Timer) Stop() {
	self := t.k.lock()
	defer t.k.unlock(self)
	t.k.tmrRemove(&t.object)
	t.object.delay = 0
	t.period = 0
}

// Wait blocks indefinitely until the timer next fires.
func (t *Timer) Wait() Status { return t.WaitFor(Infinite) }

// WaitFor blocks at most delay ticks until the timer next fires, returning
// Success when it does.
func (t *Timer) WaitFor(delay Cnt) Status {
	self := t.k.lockTask()
	defer t.k.unlock(self)
	return t.k.waitFor(self, &t.object, delay, nil)
}

// WaitUntil is WaitFor against an absolute counter value.
func (t *Timer) WaitUntil(abs Cnt) Status {
	self := t.k.lockTask()
	defer t.k.unlock(self)
	return t.k.waitUntil(self, &t.object, abs, nil)
}

// Kill disarms the timer and wakes every waiter with Stopped.
func (t *Timer) Kill() {
	self := t.k.lock()
	defer t.k.unlock(self)
	t.k.tmrRemove(&t.object)
	t.object.delay = 0
	t.period = 0
	t.k.allWakeup(&t.object, Stopped)
}
