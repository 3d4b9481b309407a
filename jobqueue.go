package rtkernel

// JobQueue is a mailbox of procedures: senders queue a func, Take and the
// Wait variants dequeue one and invoke it synchronously in the caller's
// context, outside the kernel critical section.
type JobQueue struct {
	object
	k          *Kernel
	ring       []func()
	head, tail int
	count      int
}

// NewJobQueue creates a job queue with room for limit jobs. Panics on a
// non-positive limit.
func NewJobQueue(k *Kernel, limit int) *JobQueue {
	q := &JobQueue{}
	q.Init(k, limit)
	return q
}

// Init initialises a statically allocated job queue; see [NewJobQueue].
func (q *JobQueue) Init(k *Kernel, limit int) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit <= 0 {
		panic(`rtkernel: non-positive job queue limit`)
	}
	self := k.lock()
	defer k.unlock(self)
	*q = JobQueue{k: k, ring: make([]func(), limit)}
}

func (q *JobQueue) put(fn func()) {
	q.ring[q.tail] = fn
	q.tail++
	if q.tail == len(q.ring) {
		q.tail = 0
	}
	q.count++
}

func (q *JobQueue) get() func() {
	fn := q.ring[q.head]
	q.ring[q.head] = nil
	q.head++
	if q.head == len(q.ring) {
		q.head = 0
	}
	q.count--
	return fn
}

func (q *JobQueue) recv() func() {
	if q.count == 0 {
		return nil
	}
	fn := q.get()
	for q.count < len(q.ring) {
		w := q.object.queue
		if w == nil {
			break
		}
		q.put(w.tmp.fn)
		q.k.tskWakeup(w, Success)
	}
	return fn
}

func (q *JobQueue) send(fn func()) bool {
	if q.count == 0 {
		if w := q.object.queue; w != nil {
			w.tmp.fn = fn
			q.k.tskWakeup(w, Success)
			return true
		}
	}
	if q.count < len(q.ring) {
		q.put(fn)
		return true
	}
	return false
}

// Wait dequeues and runs one job, waiting indefinitely while the queue is
// empty.
func (q *JobQueue) Wait() Status { return q.WaitFor(Infinite) }

// Take dequeues and runs one job without waiting. Safe from interrupt
// context — though the job then runs in that context.
func (q *JobQueue) Take() Status {
	self := q.k.lock()
	fn := q.recv()
	q.k.unlock(self)
	if fn == nil {
		return Timeout
	}
	fn()
	return Success
}

// WaitFor dequeues and runs one job, waiting at most delay ticks while the
// queue is empty.
func (q *JobQueue) WaitFor(delay Cnt) Status {
	self := q.k.lockTask()
	fn := q.recv()
	var st Status
	if fn == nil {
		self.tmp.fn = nil
		st = q.k.waitFor(self, &q.object, delay, nil)
		fn = self.tmp.fn
	}
	q.k.unlock(self)
	if fn != nil {
		fn()
		return Success
	}
	return st
}

// WaitUntil is WaitFor against an absolute counter value.
func (q *JobQueue) WaitUntil(abs Cnt) Status {
	self := q.k.lockTask()
	fn := q.recv()
	var st Status
	if fn == nil {
		self.tmp.fn = nil
		st = q.k.waitUntil(self, &q.object, abs, nil)
		fn = self.tmp.fn
	}
	q.k.unlock(self)
	if fn != nil {
		fn()
		return Success
	}
	return st
}

// Send queues fn, waiting indefinitely while the queue is full. Panics on a
// nil fn.
func (q *JobQueue) Send(fn func()) Status { return q.SendFor(fn, Infinite) }

// Give queues fn without waiting, returning Timeout when the queue is full.
// Safe from interrupt context.
func (q *JobQueue) Give(fn func()) Status {
	if fn == nil {
		panic(`rtkernel: nil job`)
	}
	self := q.k.lock()
	defer q.k.unlock(self)
	if q.send(fn) {
		return Success
	}
	return Timeout
}

// SendFor queues fn, waiting at most delay ticks while the queue is full.
func (q *JobQueue) SendFor(fn func(), delay Cnt) Status {
	if fn == nil {
		panic(`rtkernel: nil job`)
	}
	self := q.k.lockTask()
	defer q.k.unlock(self)
	if q.send(fn) {
		return Success
	}
	self.tmp.fn = fn
	return q.k.waitFor(self, &q.object, delay, nil)
}

// SendUntil is SendFor against an absolute counter value.
func (q *JobQueue) SendUntil(fn func(), abs Cnt) Status {
	if fn == nil {
		panic(`rtkernel: nil job`)
	}
	self := q.k.lockTask()
	defer q.k.unlock(self)
	if q.send(fn) {
		return Success
	}
	self.tmp.fn = fn
	return q.k.waitUntil(self, &q.object, abs, nil)
}

// Push queues fn, discarding the oldest queued job when the queue is full
// and no sender is parked. Safe from interrupt context.
func (q *JobQueue) Push(fn func()) Status {
	if fn == nil {
		panic(`rtkernel: nil job`)
	}
	self := q.k.lock()
	defer q.k.unlock(self)
	if q.send(fn) {
		return Success
	}
	if q.object.queue != nil {
		return Timeout
	}
	q.get()
	q.put(fn)
	return Success
}

// Count returns the number of queued jobs.
func (q *JobQueue) Count() int {
	self := q.k.lock()
	defer q.k.unlock(self)
	return q.count
}

// Kill resets the queue, discarding queued jobs and waking every waiter with
// Stopped.
func (q *JobQueue) Kill() {
	self := q.k.lock()
	defer q.k.unlock(self)
	clear(q.ring)
	q.head, q.tail, q.count = 0, 0, 0
	q.k.allWakeup(&q.object, Stopped)
}
