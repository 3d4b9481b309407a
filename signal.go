package rtkernel

// Signal is a one-shot flag. Give wakes the head waiter directly, or latches
// the flag for the next Wait to consume.
type Signal struct {
	object
	k    *Kernel
	flag bool
}

// NewSignal creates a signal.
func NewSignal(k *Kernel) *Signal {
	s := &Signal{}
	s.Init(k)
	return s
}

// Init initialises a statically allocated signal; see [NewSignal].
func (s *Signal) Init(k *Kernel) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*s = Signal{k: k}
}

// Wait consumes the flag, waiting indefinitely while it is clear.
func (s *Signal) Wait() Status { return s.WaitFor(Infinite) }

// Take consumes the flag without waiting. Safe from interrupt context.
func (s *Signal) Take() Status {
	self := s.k.lock()
	defer s.k.unlock(self)
	if s.flag {
		s.flag = false
		return Success
	}
	return Timeout
}

// WaitFor consumes the flag, waiting at most delay ticks while it is clear.
func (s *Signal) WaitFor(delay Cnt) Status {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	if s.flag {
		s.flag = false
		return Success
	}
	return s.k.waitFor(self, &s.object, delay, nil)
}

// WaitUntil is WaitFor against an absolute counter value.
func (s *Signal) WaitUntil(abs Cnt) Status {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	if s.flag {
		s.flag = false
		return Success
	}
	return s.k.waitUntil(self, &s.object, abs, nil)
}

// Give raises the signal: the head waiter consumes it directly, otherwise
// the flag latches. Safe from interrupt context.
func (s *Signal) Give() {
	self := s.k.lock()
	defer s.k.unlock(self)
	if s.k.oneWakeup(&s.object, Success) == nil {
		s.flag = true
	}
}

// Clear lowers a latched signal. Safe from interrupt context.
func (s *Signal) Clear() {
	self := s.k.lock()
	defer s.k.unlock(self)
	s.flag = false
}

// Kill resets the signal, waking every waiter with Stopped.
func (s *Signal) Kill() {
	self := s.k.lock()
	defer s.k.unlock(self)
	s.flag = false
	s.k.allWakeup(&s.object, Stopped)
}
