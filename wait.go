package rtkernel

// The generic wait-on-object protocol shared by every blocking primitive:
// append a task into an object's priority-ordered waiter queue, suspend it
// with an optional deadline, and wake one or all waiters with a reason code.

// tskAppend inserts tsk into obj's waiter queue at its priority-ordered slot
// (FIFO on ties) and records obj as the task's guard.
func (k *Kernel) tskAppend(tsk *Task, obj *object) {
	tsk.guard = obj
	prv := obj
	nxt := obj.queue
	for nxt != nil && tsk.prio <= nxt.prio {
		prv = &nxt.object
		nxt = nxt.object.queue
	}
	if nxt != nil {
		nxt.back = &tsk.object
	}
	tsk.back = prv
	tsk.object.queue = nxt
	prv.queue = tsk
}

// tskUnlink removes tsk from its guard's waiter queue, recording the wake
// reason.
func (k *Kernel) tskUnlink(tsk *Task, event Status) {
	tsk.event = event
	prv := tsk.back
	nxt := tsk.object.queue
	if nxt != nil {
		nxt.back = prv
	}
	prv.queue = nxt
	tsk.object.queue = nil
	tsk.back = nil
	tsk.guard = nil
}

// waitFor suspends self on obj for at most delay ticks, returning the wake
// reason set by the eventual waker, or Timeout without suspending when delay
// is Immediate. pre, if non-nil, runs after self is queued but before the
// switch — the priority-inheritance hook.
//
// Runs under the critical section and returns holding it.
func (k *Kernel) waitFor(self *Task, obj *object, delay Cnt, pre func()) Status {
	self.start = k.now()
	self.delay = delay

	if delay == Immediate {
		return Timeout
	}

	k.tskAppend(self, obj)
	k.readyRemove(self)
	k.tmrEnqueue(&self.object, idDelayed)
	if pre != nil {
		pre()
	}
	k.contextSwitch()

	return self.event
}

// waitUntil is waitFor against an absolute counter value.
func (k *Kernel) waitUntil(self *Task, obj *object, abs Cnt, pre func()) Status {
	self.start = k.now()
	self.delay = k.sub(abs, self.start)

	if self.delay == Immediate {
		return Timeout
	}

	k.tskAppend(self, obj)
	k.readyRemove(self)
	k.tmrEnqueue(&self.object, idDelayed)
	if pre != nil {
		pre()
	}
	k.contextSwitch()

	return self.event
}

// tskWakeup wakes tsk with the given reason: unlink from its guard, drop its
// deadline, make it ready. Waking does not grant the CPU — the scheduler
// does, at the next context switch. nil tsk is a no-op.
func (k *Kernel) tskWakeup(tsk *Task, event Status) *Task {
	if tsk != nil {
		k.tskUnlink(tsk, event)
		k.tmrRemove(&tsk.object)
		k.wakeInsert(tsk)
	}
	return tsk
}

// oneWakeup wakes the head waiter of obj, if any, and returns it.
func (k *Kernel) oneWakeup(obj *object, event Status) *Task {
	return k.tskWakeup(obj.queue, event)
}

// allWakeup wakes every waiter of obj.
func (k *Kernel) allWakeup(obj *object, event Status) {
	for k.tskWakeup(obj.queue, event) != nil {
	}
}
