package rtkernel

import (
	cycle "github.com/joeycumines/go-detect-cycle/floyds"
)

// Mutex is a priority-inheritance mutex: while a higher-priority task waits,
// the owner's effective priority is raised to the head waiter's, and the
// raise propagates through the chain of mutexes the owner is itself waiting
// on. Ownership transfers directly to the head waiter on unlock.
type Mutex struct {
	object
	k         *Kernel
	owner     *Task
	next      *Mutex // next mutex in the owner's held chain
	count     uint   // recursion depth (recursive mutexes only)
	recursive bool
}

// NewMutex creates a mutex. A recursive mutex may be re-locked by its owner,
// tracking a lock count; a non-recursive one fails such a re-lock with
// Deadlock.
func NewMutex(k *Kernel, recursive bool) *Mutex {
	m := &Mutex{}
	m.Init(k, recursive)
	return m
}

// Init initialises a statically allocated mutex; see [NewMutex].
func (m *Mutex) Init(k *Kernel, recursive bool) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*m = Mutex{k: k, recursive: recursive}
	m.object.mtx = m
}

// Lock acquires the mutex, waiting indefinitely.
func (m *Mutex) Lock() Status { return m.LockFor(Infinite) }

// TryLock acquires the mutex without waiting, returning Timeout when it is
// held by another task.
func (m *Mutex) TryLock() Status { return m.LockFor(Immediate) }

// LockFor acquires the mutex, waiting at most delay ticks while it is held
// by another task. Returns Success once owned, Deadlock on a non-recursive
// re-lock by the owner, Timeout or Stopped otherwise.
func (m *Mutex) LockFor(delay Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.lock(self, delay, false)
}

// LockUntil is LockFor against an absolute counter value.
func (m *Mutex) LockUntil(abs Cnt) Status {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.lock(self, abs, true)
}

func (m *Mutex) lock(self *Task, t Cnt, until bool) Status {
	k := m.k

	if m.owner == nil {
		m.owner = self
		m.next = self.held
		self.held = m
		return Success
	}
	if m.owner == self {
		if m.recursive {
			m.count++
			return Success
		}
		return Deadlock
	}

	pre := func() {
		if b := k.log.Debug(); b.Enabled() {
			b.Uint64(`task`, self.id).Uint64(`owner`, m.owner.id).Log(`mutex contention`)
		}
		k.taskPrio(m.owner)
	}

	var st Status
	if until {
		st = k.waitUntil(self, &m.object, t, pre)
	} else {
		st = k.waitFor(self, &m.object, t, pre)
	}
	if st != Success && m.owner != nil {
		// the waiter left without the lock; the owner may deprioritise
		k.taskPrio(m.owner)
	}
	return st
}

// Unlock releases the mutex. Must be called by the owner; returns NotOwner
// otherwise. A recursive mutex unlocks once its count drains. Releasing
// restores the caller's effective priority and hands ownership to the head
// waiter, which may preempt the caller.
func (m *Mutex) Unlock() Status {
	k := m.k
	self := k.lockTask()
	defer k.unlock(self)

	if m.owner != self {
		return NotOwner
	}
	if m.count > 0 {
		m.count--
		return Success
	}

	m.removeHeld(self)
	k.taskPrio(self)

	if w := m.object.queue; w != nil {
		m.owner = w
		m.next = w.held
		w.held = m
		k.oneWakeup(&m.object, Success)
		k.taskPrio(w)
	} else {
		m.owner = nil
		m.next = nil
	}
	return Success
}

// Kill resets the mutex, waking every waiter with Stopped and clearing the
// owner link.
func (m *Mutex) Kill() {
	k := m.k
	self := k.lock()
	defer k.unlock(self)

	if o := m.owner; o != nil {
		m.removeHeld(o)
		m.owner = nil
		m.count = 0
		k.taskPrio(o)
	}
	k.allWakeup(&m.object, Stopped)
}

// removeHeld unlinks m from owner's held chain.
func (m *Mutex) removeHeld(owner *Task) {
	for p := &owner.held; *p != nil; p = &(*p).next {
		if *p == m {
			*p = m.next
			m.next = nil
			return
		}
	}
}

// taskPrio recomputes t's effective priority from its basic priority and the
// head waiters of every mutex it holds, restores t's position in whichever
// queue it occupies, and propagates up the ownership chain when t is itself
// waiting on a mutex. The walk is bounded by the mutex-holding depth and
// guarded against ownership cycles.
func (k *Kernel) taskPrio(t *Task) {
	det := cycle.NewBranchingDetector(t, nil)
	defer func() { det.Clear() }()

	for t != nil {
		prio := t.basic
		for m := t.held; m != nil; m = m.next {
			if m.object.queue != nil && m.object.queue.prio > prio {
				prio = m.object.queue.prio
			}
		}
		if t.prio == prio {
			return
		}
		t.prio = prio

		if b := k.log.Debug(); b.Enabled() {
			b.Uint64(`task`, t.id).Uint64(`prio`, uint64(prio)).Log(`effective priority changed`)
		}

		var next *Task
		switch t.object.id {
		case idReady:
			k.readyRemove(t)
			k.wakeInsert(t)
		case idDelayed:
			if g := t.guard; g != nil {
				k.tskUnlink(t, t.event)
				k.tskAppend(t, g)
				if g.mtx != nil {
					next = g.mtx.owner
				}
			}
		}

		if next == nil {
			return
		}
		det = det.Hare(next)
		if !det.Ok() {
			panic(`rtkernel: mutex ownership cycle`)
		}
		t = next
	}
}
