package rtkernel

// FastMutex is the light mutex: owner-checked and non-recursive, with no
// priority inheritance. Use it for short sections where inversion cannot
// bite; [Mutex] is the inheriting flavour.
type FastMutex struct {
	object
	k     *Kernel
	owner *Task
}

// NewFastMutex creates a fast mutex.
func NewFastMutex(k *Kernel) *FastMutex {
	m := &FastMutex{}
	m.Init(k)
	return m
}

// Init initialises a statically allocated fast mutex; see [NewFastMutex].
func (m *FastMutex) Init(k *Kernel) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*m = FastMutex{k: k}
}

// Lock acquires the mutex, waiting indefinitely.
func (m *FastMutex) Lock() Status { return m.LockFor(Infinite) }

// TryLock acquires the mutex without waiting.
func (m *FastMutex) TryLock() Status { return m.LockFor(Immediate) }

// LockFor acquires the mutex, waiting at most delay ticks. A re-lock by the
// owner fails with Deadlock.
func (m *FastMutex) LockFor(delay Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.lock(self, delay, false)
}

// LockUntil is LockFor against an absolute counter value.
func (m *FastMutex) LockUntil(abs Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.lock(self, abs, true)
}

func (m *FastMutex) lock(self *Task, t Cnt, until bool) Status {
	if m.owner == nil {
		m.owner = self
		return Success
	}
	if m.owner == self {
		return Deadlock
	}
	if until {
		return m.k.waitUntil(self, &m.object, t, nil)
	}
	return m.k.waitFor(self, &m.object, t, nil)
}

// Unlock releases the mutex, handing ownership to the head waiter. Returns
// NotOwner when called by a task that does not own it.
func (m *FastMutex) Unlock() Status {
	k := m.k
	self := k.lockTask()
	defer k.unlock(self)

	if m.owner != self {
		return NotOwner
	}
	m.owner = k.oneWakeup(&m.object, Success)
	return Success
}

// Kill resets the mutex, waking every waiter with Stopped.
func (m *FastMutex) Kill() {
	k := m.k
	self := k.lock()
	defer k.unlock(self)
	m.owner = nil
	k.allWakeup(&m.object, Stopped)
}
