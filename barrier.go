package rtkernel

// Barrier releases a group of tasks together: each Wait parks the caller
// until the configured number of tasks have arrived, at which point all of
// them wake with Success and the barrier resets for the next round.
type Barrier struct {
	object
	k     *Kernel
	count uint // arrivals still needed this round
	limit uint
}

// NewBarrier creates a barrier with the given threshold. Panics on a zero
// limit.
func NewBarrier(k *Kernel, limit uint) *Barrier {
	b := &Barrier{}
	b.Init(k, limit)
	return b
}

// Init initialises a statically allocated barrier; see [NewBarrier].
func (b *Barrier) Init(k *Kernel, limit uint) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit == 0 {
		panic(`rtkernel: zero barrier limit`)
	}
	self := k.lock()
	defer k.unlock(self)
	*b = Barrier{k: k, count: limit, limit: limit}
}

// Wait arrives at the barrier, blocking indefinitely for the rest of the
// group.
func (b *Barrier) Wait() Status { return b.WaitFor(Infinite) }

// WaitFor arrives at the barrier, blocking at most delay ticks. A waiter
// that times out un-arrives: the round still needs the full group.
func (b *Barrier) WaitFor(delay Cnt) Status {
	self := b.k.lockTask()
	defer b.k.unlock(self)
	return b.wait(self, delay, false)
}

// WaitUntil is WaitFor against an absolute counter value.
func (b *Barrier) WaitUntil(abs Cnt) Status {
	self := b.k.lockTask()
	defer b.k.unlock(self)
	return b.wait(self, abs, true)
}

func (b *Barrier) wait(self *Task, t Cnt, until bool) Status {
	b.count--
	if b.count == 0 {
		b.count = b.limit
		b.k.allWakeup(&b.object, Success)
		return Success
	}

	var st Status
	if until {
		st = b.k.waitUntil(self, &b.object, t, nil)
	} else {
		st = b.k.waitFor(self, &b.object, t, nil)
	}
	if st == Timeout {
		b.count++
	}
	return st
}

// Kill resets the barrier, waking every waiter with Stopped.
func (b *Barrier) Kill() {
	self := b.k.lock()
	defer b.k.unlock(self)
	b.count = b.limit
	b.k.allWakeup(&b.object, Stopped)
}
