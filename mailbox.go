package rtkernel

// Mailbox is a queue of fixed-size slots. Send waits while the queue is
// full, receive waits while it is empty. A send meeting a waiting receiver
// copies straight into the receiver's scratch slot — no pass through the
// ring — and a receive meeting waiting senders drains them into the space it
// freed, in priority order.
type Mailbox[T any] struct {
	object
	k          *Kernel
	ring       []T
	head, tail int
	count      int
}

// NewMailbox creates a mailbox with room for limit values. Panics on a
// non-positive limit.
func NewMailbox[T any](k *Kernel, limit int) *Mailbox[T] {
	m := &Mailbox[T]{}
	m.Init(k, limit)
	return m
}

// Init initialises a statically allocated mailbox; see [NewMailbox].
func (m *Mailbox[T]) Init(k *Kernel, limit int) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit <= 0 {
		panic(`rtkernel: non-positive mailbox limit`)
	}
	self := k.lock()
	defer k.unlock(self)
	*m = Mailbox[T]{k: k, ring: make([]T, limit)}
}

func (m *Mailbox[T]) put(v T) {
	m.ring[m.tail] = v
	m.tail++
	if m.tail == len(m.ring) {
		m.tail = 0
	}
	m.count++
}

func (m *Mailbox[T]) get() T {
	v := m.ring[m.head]
	m.ring[m.head] = *new(T)
	m.head++
	if m.head == len(m.ring) {
		m.head = 0
	}
	m.count--
	return v
}

// drainSenders moves values from parked senders into freed slots. Only
// senders can be queued while the ring has been full.
func (m *Mailbox[T]) drainSenders() {
	for m.count < len(m.ring) {
		w := m.object.queue
		if w == nil {
			return
		}
		m.put(*w.tmp.slot.(*T))
		m.k.tskWakeup(w, Success)
	}
}

func (m *Mailbox[T]) recv(data *T) bool {
	if m.count == 0 {
		return false
	}
	*data = m.get()
	m.drainSenders()
	return true
}

func (m *Mailbox[T]) send(v T) bool {
	if m.count == 0 {
		if w := m.object.queue; w != nil {
			// waiting receiver: copy directly into its scratch slot
			*w.tmp.slot.(*T) = v
			m.k.tskWakeup(w, Success)
			return true
		}
	}
	if m.count < len(m.ring) {
		m.put(v)
		return true
	}
	return false
}

// Wait receives a value into data, waiting indefinitely while the mailbox is
// empty.
func (m *Mailbox[T]) Wait(data *T) Status { return m.WaitFor(data, Infinite) }

// Take receives a value without waiting. Safe from interrupt context.
func (m *Mailbox[T]) Take(data *T) Status {
	self := m.k.lock()
	defer m.k.unlock(self)
	if m.recv(data) {
		return Success
	}
	return Timeout
}

// WaitFor receives a value into data, waiting at most delay ticks while the
// mailbox is empty.
func (m *Mailbox[T]) WaitFor(data *T, delay Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	if m.recv(data) {
		return Success
	}
	self.tmp.slot = data
	return m.k.waitFor(self, &m.object, delay, nil)
}

// WaitUntil is WaitFor against an absolute counter value.
func (m *Mailbox[T]) WaitUntil(data *T, abs Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	if m.recv(data) {
		return Success
	}
	self.tmp.slot = data
	return m.k.waitUntil(self, &m.object, abs, nil)
}

// Send transfers v, waiting indefinitely while the mailbox is full.
func (m *Mailbox[T]) Send(v T) Status { return m.SendFor(v, Infinite) }

// Give transfers v without waiting, returning Timeout when the mailbox is
// full. Safe from interrupt context.
func (m *Mailbox[T]) Give(v T) Status {
	self := m.k.lock()
	defer m.k.unlock(self)
	if m.send(v) {
		return Success
	}
	return Timeout
}

// SendFor transfers v, waiting at most delay ticks while the mailbox is
// full.
func (m *Mailbox[T]) SendFor(v T, delay Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	if m.send(v) {
		return Success
	}
	self.tmp.slot = &v
	return m.k.waitFor(self, &m.object, delay, nil)
}

// SendUntil is SendFor against an absolute counter value.
func (m *Mailbox[T]) SendUntil(v T, abs Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	if m.send(v) {
		return Success
	}
	self.tmp.slot = &v
	return m.k.waitUntil(self, &m.object, abs, nil)
}

// Push transfers v, discarding the oldest queued value to make room when the
// mailbox is full and no sender is parked. Returns Timeout when parked
// senders hold the order. Safe from interrupt context.
func (m *Mailbox[T]) Push(v T) Status {
	self := m.k.lock()
	defer m.k.unlock(self)
	if m.send(v) {
		return Success
	}
	if m.object.queue != nil {
		return Timeout
	}
	m.get()
	m.put(v)
	return Success
}

// Count returns the number of queued values.
func (m *Mailbox[T]) Count() int {
	self := m.k.lock()
	defer m.k.unlock(self)
	return m.count
}

// Space returns the number of free slots.
func (m *Mailbox[T]) Space() int {
	self := m.k.lock()
	defer m.k.unlock(self)
	return len(m.ring) - m.count
}

// Kill resets the mailbox, discarding queued values and waking every waiter
// with Stopped.
func (m *Mailbox[T]) Kill() {
	self := m.k.lock()
	defer m.k.unlock(self)
	clear(m.ring)
	m.head, m.tail, m.count = 0, 0, 0
	m.k.allWakeup(&m.object, Stopped)
}
