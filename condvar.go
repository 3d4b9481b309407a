package rtkernel

// CondVar is a condition variable used with a [Mutex]: Wait atomically
// releases the mutex and parks the caller, then re-acquires the mutex before
// returning, whatever the wake reason.
type CondVar struct {
	object
	k *Kernel
}

// NewCondVar creates a condition variable.
func NewCondVar(k *Kernel) *CondVar {
	c := &CondVar{}
	c.Init(k)
	return c
}

// Init initialises a statically allocated condition variable; see
// [NewCondVar].
func (c *CondVar) Init(k *Kernel) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*c = CondVar{k: k}
}

// Wait releases m and blocks indefinitely for a Signal or Broadcast,
// re-acquiring m before returning.
func (c *CondVar) Wait(m *Mutex) Status { return c.WaitFor(m, Infinite) }

// WaitFor releases m and blocks at most delay ticks for a Signal or
// Broadcast. The mutex is re-acquired (waiting indefinitely) before
// returning, so the returned status reflects only the condition wait.
// Returns NotOwner, with m untouched, when the caller does not own it.
func (c *CondVar) WaitFor(m *Mutex, delay Cnt) Status {
	self := c.k.lockTask()
	defer c.k.unlock(self)
	return c.wait(self, m, delay, false)
}

// WaitUntil is WaitFor against an absolute counter value.
func (c *CondVar) WaitUntil(m *Mutex, abs Cnt) Status {
	self := c.k.lockTask()
	defer c.k.unlock(self)
	return c.wait(self, m, abs, true)
}

func (c *CondVar) wait(self *Task, m *Mutex, t Cnt, until bool) Status {
	if m == nil || m.owner != self {
		return NotOwner
	}

	// the whole sequence runs under one critical section, so the release and
	// the park are atomic with respect to Signal/Broadcast
	m.Unlock()
	var st Status
	if until {
		st = c.k.waitUntil(self, &c.object, t, nil)
	} else {
		st = c.k.waitFor(self, &c.object, t, nil)
	}
	m.Lock()
	return st
}

// Signal wakes the head waiter, if any. Safe from interrupt context.
func (c *CondVar) Signal() {
	self := c.k.lock()
	defer c.k.unlock(self)
	c.k.oneWakeup(&c.object, Success)
}

// Broadcast wakes every waiter. Safe from interrupt context.
func (c *CondVar) Broadcast() {
	self := c.k.lock()
	defer c.k.unlock(self)
	c.k.allWakeup(&c.object, Success)
}

// Kill wakes every waiter with Stopped; each still re-acquires its mutex on
// the way out.
func (c *CondVar) Kill() {
	self := c.k.lock()
	defer c.k.unlock(self)
	c.k.allWakeup(&c.object, Stopped)
}
