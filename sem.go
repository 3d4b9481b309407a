package rtkernel

// Semaphore is a counting semaphore. Give hands the unit directly to the
// head waiter when one exists, so the counter is untouched by a
// give-to-waiter rendezvous.
type Semaphore struct {
	object
	k     *Kernel
	count uint
	limit uint
}

// NewSemaphore creates a semaphore with an initial count and an upper limit.
// A zero limit means unbounded.
func NewSemaphore(k *Kernel, count, limit uint) *Semaphore {
	s := &Semaphore{}
	s.Init(k, count, limit)
	return s
}

// Init initialises a statically allocated semaphore; see [NewSemaphore].
func (s *Semaphore) Init(k *Kernel, count, limit uint) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit != 0 && count > limit {
		panic(`rtkernel: semaphore count above limit`)
	}
	self := k.lock()
	defer k.unlock(self)
	*s = Semaphore{k: k, count: count, limit: limit}
}

// Wait takes a unit, waiting indefinitely while the count is zero.
func (s *Semaphore) Wait() Status { return s.WaitFor(Infinite) }

// Take takes a unit without waiting, returning Timeout when none is
// available. Safe from interrupt context.
func (s *Semaphore) Take() Status {
	self := s.k.lock()
	defer s.k.unlock(self)
	if s.count > 0 {
		s.count--
		return Success
	}
	return Timeout
}

// WaitFor takes a unit, waiting at most delay ticks while the count is zero.
func (s *Semaphore) WaitFor(delay Cnt) Status {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	if s.count > 0 {
		s.count--
		return Success
	}
	return s.k.waitFor(self, &s.object, delay, nil)
}

// WaitUntil is WaitFor against an absolute counter value.
func (s *Semaphore) WaitUntil(abs Cnt) Status {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	if s.count > 0 {
		s.count--
		return Success
	}
	return s.k.waitUntil(self, &s.object, abs, nil)
}

// Give releases a unit: the head waiter receives it directly, otherwise the
// count increments. Returns Overflow at the limit. Safe from interrupt
// context.
func (s *Semaphore) Give() Status {
	self := s.k.lock()
	defer s.k.unlock(self)
	if s.k.oneWakeup(&s.object, Success) != nil {
		return Success
	}
	if s.limit != 0 && s.count >= s.limit {
		return Overflow
	}
	s.count++
	return Success
}

// Count returns the current count.
func (s *Semaphore) Count() uint {
	self := s.k.lock()
	defer s.k.unlock(self)
	return s.count
}

// Kill resets the semaphore, zeroing the count and waking every waiter with
// Stopped.
func (s *Semaphore) Kill() {
	self := s.k.lock()
	defer s.k.unlock(self)
	s.count = 0
	s.k.allWakeup(&s.object, Stopped)
}
