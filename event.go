package rtkernel

// Event broadcasts a value: every Give wakes all current waiters, each
// receiving the given value. There is no latch — a waiter arriving after a
// Give waits for the next one.
type Event struct {
	object
	k *Kernel
}

// NewEvent creates an event.
func NewEvent(k *Kernel) *Event {
	e := &Event{}
	e.Init(k)
	return e
}

// Init initialises a statically allocated event; see [NewEvent].
func (e *Event) Init(k *Kernel) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*e = Event{k: k}
}

// Wait blocks indefinitely for the next broadcast, returning its value.
func (e *Event) Wait() (uint, Status) { return e.WaitFor(Infinite) }

// WaitFor blocks at most delay ticks for the next broadcast.
func (e *Event) WaitFor(delay Cnt) (uint, Status) {
	self := e.k.lockTask()
	defer e.k.unlock(self)
	self.tmp.val = 0
	st := e.k.waitFor(self, &e.object, delay, nil)
	return self.tmp.val, st
}

// WaitUntil is WaitFor against an absolute counter value.
func (e *Event) WaitUntil(abs Cnt) (uint, Status) {
	self := e.k.lockTask()
	defer e.k.unlock(self)
	self.tmp.val = 0
	st := e.k.waitUntil(self, &e.object, abs, nil)
	return self.tmp.val, st
}

// Give broadcasts val to every current waiter. Safe from interrupt context.
func (e *Event) Give(val uint) {
	self := e.k.lock()
	defer e.k.unlock(self)
	for w := e.object.queue; w != nil; w = e.object.queue {
		w.tmp.val = val
		e.k.tskWakeup(w, Success)
	}
}

// Kill wakes every waiter with Stopped.
func (e *Event) Kill() {
	self := e.k.lock()
	defer e.k.unlock(self)
	e.k.allWakeup(&e.object, Stopped)
}
