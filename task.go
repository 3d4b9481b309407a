package rtkernel

import (
	"context"
	"sync/atomic"
)

// xfer is the per-task scratch used by the wait protocol to convey request
// parameters between a suspended task and its waker: buffer pointers and
// remaining sizes for the byte-transfer primitives, a typed slot for the
// generic ones, a procedure for job queues, and the mask/value pair for
// event flags and broadcast events.
type xfer struct {
	in   []byte
	out  []byte
	size int
	slot any
	fn   func()
	mask uint32
	all  bool
	val  uint
}

// Task is a schedulable activity: an entry procedure with a priority,
// executing on the kernel's virtual CPU. Storage is owned by the creator and
// must outlive any object the task blocks on.
//
// A task is in exactly one of: the ready queue, the delayed queue (waiting,
// possibly also in one object's waiter queue), or stopped.
type Task struct {
	object
	basic uint // configured priority
	prio  uint // effective priority, possibly raised by inheritance
	guard *object
	back  *object // predecessor in the guard's waiter queue
	event Status
	held  *Mutex // head of the chain of owned mutexes
	tmp   xfer

	k     *Kernel
	entry func()
	id    uint64

	// virtual-CPU state: gate delivers the CPU token, done closes when the
	// task goroutine exits, gen invalidates superseded goroutines. A task
	// that has never been dispatched has no goroutine — the scheduler spawns
	// one on first grant.
	gate    chan struct{}
	done    chan struct{}
	started bool
	gen     uint64
	gid     uint64
}

var taskIDCounter atomic.Uint64

// NewTask creates a task with the given priority and entry procedure and
// makes it ready. The entry runs once the scheduler grants the task the
// virtual CPU; if it returns, the task yields and re-enters it. Panics on a
// nil kernel or entry.
func NewTask(k *Kernel, prio uint, entry func()) *Task {
	t := &Task{}
	t.Init(k, prio, entry)
	return t
}

// Init initialises a statically allocated task; see [NewTask].
func (t *Task) Init(k *Kernel, prio uint, entry func()) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if entry == nil {
		panic(`rtkernel: nil task entry`)
	}

	self := k.lock()
	defer k.unlock(self)

	t.k = k
	t.object.tsk = t
	t.basic = prio
	t.prio = prio
	t.entry = entry
	t.id = taskIDCounter.Add(1)
	t.gate = make(chan struct{}, 1)
	t.done = make(chan struct{})
	k.tasks = append(k.tasks, t)

	if k.stopped {
		return
	}

	if b := k.log.Debug(); b.Enabled() {
		b.Uint64(`task`, t.id).Uint64(`prio`, uint64(prio)).Log(`task created`)
	}

	k.wakeInsert(t)
}

// ID returns the task's kernel-wide identifier.
func (t *Task) ID() uint64 { return t.id }

// Prio returns the task's current effective priority.
func (t *Task) Prio() uint {
	self := t.k.lock()
	defer t.k.unlock(self)
	return t.prio
}

// BasicPrio returns the task's configured priority.
func (t *Task) BasicPrio() uint {
	self := t.k.lock()
	defer t.k.unlock(self)
	return t.basic
}

// SetPrio changes the task's configured priority and recomputes its
// effective priority, restoring queue order and propagating through any
// mutex chain.
func (t *Task) SetPrio(prio uint) {
	self := t.k.lock()
	defer t.k.unlock(self)
	t.basic = prio
	t.k.taskPrio(t)
}

// Stop terminates the calling task. It must be called by the task itself and
// never returns. Terminating while owning mutexes is a fatal programming
// error.
func (t *Task) Stop() {
	k := t.k
	self := k.lockTask()
	if self != t {
		k.rawUnlock()
		panic(`rtkernel: Stop by a task other than the target`)
	}
	if t.held != nil {
		k.rawUnlock()
		panic(`rtkernel: task stopped while owning mutexes`)
	}

	if b := k.log.Debug(); b.Enabled() {
		b.Uint64(`task`, t.id).Log(`task stopped`)
	}

	k.readyRemove(t)
	t.started = false
	t.gen++
	k.pending = true
	k.unlock(t)
	// the posted switch exits the goroutine before unlock returns
	panic(`rtkernel: unreachable`)
}

// Kill terminates the task from any context. A running task is evicted at
// its next kernel call; a waiting or ready task is removed from every queue
// immediately. Kill is idempotent. Killing resets the task's saved context,
// so a subsequent [Task.Start] re-enters its entry procedure from the top.
func (t *Task) Kill() {
	k := t.k
	self := k.lock()
	defer k.unlock(self)
	k.taskKill(t)
}

func (k *Kernel) taskKill(t *Task) {
	if t.object.id == idStopped && !t.started {
		return
	}
	if t.held != nil {
		if !k.stopped {
			panic(`rtkernel: task killed while owning mutexes`)
		}
		// kernel teardown force-releases whatever the task still owns
		for m := t.held; m != nil; {
			nxt := m.next
			m.owner, m.next, m.count = nil, nil, 0
			k.allWakeup(&m.object, Stopped)
			m = nxt
		}
		t.held = nil
	}

	switch t.object.id {
	case idReady:
		k.readyRemove(t)
	case idDelayed:
		k.tskUnlink(t, Stopped)
		k.tmrRemove(&t.object)
	}

	if b := k.log.Debug(); b.Enabled() {
		b.Uint64(`task`, t.id).Log(`task killed`)
	}

	wasStarted := t.started
	t.started = false
	t.gen++

	if t == k.cur {
		// running in user code; evicted at its next kernel call
		k.pending = true
	} else if wasStarted {
		// parked; the grant below is the eviction notice
		select {
		case t.gate <- struct{}{}:
		default:
		}
		t.gate = make(chan struct{}, 1)
	}
}

// Start makes a stopped task ready again, re-entering its entry procedure on
// first dispatch. Starting a task that is not stopped is a no-op.
func (t *Task) Start() {
	k := t.k
	self := k.lock()
	defer k.unlock(self)

	if t.object.id != idStopped || k.stopped {
		return
	}
	t.gate = make(chan struct{}, 1)
	t.done = make(chan struct{})
	t.gid = 0
	k.wakeInsert(t)
}

// Join blocks until the task's goroutine has exited — it was stopped or
// killed — or ctx expires. Join returns immediately when the task is not
// started: never dispatched, or already stopped or killed, in which case its
// goroutine may still be on its way out.
func (t *Task) Join(ctx context.Context) error {
	k := t.k
	if self := k.lock(); self != nil || k.lockDepth > 0 {
		k.unlock(self)
		panic(`rtkernel: Join from kernel context`)
	}
	if !t.started {
		k.unlock(nil)
		return nil
	}
	done := t.done
	k.unlock(nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Yield passes the CPU to the next ready task of the same priority
// (round-robin), returning once re-scheduled.
func (k *Kernel) Yield() {
	self := k.lockTask()
	k.pending = true
	k.unlock(self)
}

// SleepFor suspends the calling task for the given number of ticks. Returns
// Timeout on expiry; a task killed while asleep does not return.
// SleepFor(Infinite) suspends until killed.
func (k *Kernel) SleepFor(delay Cnt) Status {
	self := k.lockTask()
	defer k.unlock(self)
	return k.waitFor(self, &k.wait, delay, nil)
}

// SleepUntil suspends the calling task until the counter reaches the given
// absolute value.
func (k *Kernel) SleepUntil(abs Cnt) Status {
	self := k.lockTask()
	defer k.unlock(self)
	return k.waitUntil(self, &k.wait, abs, nil)
}
