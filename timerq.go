package rtkernel

// The delayed queue: a deadline-ordered circular list rooted at a sentinel
// whose delay is Infinite, holding both tasks waiting with a timeout and
// timer objects.

// tmrInsert places obj into the delayed queue ordered by remaining time:
// walk while the neighbour's remaining time is less than or equal to the
// inserted item's. Entries with Infinite delay park at the tail and never
// expire.
func (k *Kernel) tmrInsert(obj *object, id objID) {
	nxt := &k.wait
	if obj.delay != Infinite {
		deadline := k.add(obj.start, obj.delay)
		for {
			nxt = nxt.next
			if nxt.delay == Infinite || nxt.delay > k.sub(deadline, nxt.start) {
				break
			}
		}
	}
	listInsert(obj, id, nxt)
}

// tmrEnqueue is tmrInsert plus re-programming the next-deadline compare
// register when the head may have changed.
func (k *Kernel) tmrEnqueue(obj *object, id objID) {
	k.tmrInsert(obj, id)
	k.programDeadline()
}

// tmrRemove unlinks obj from the delayed queue, tolerating entries that are
// not queued.
func (k *Kernel) tmrRemove(obj *object) {
	if obj.id == idDelayed || obj.id == idTimer {
		listRemove(obj)
	}
}

// programDeadline tells the tick source the counter value of the earliest
// deadline, or Infinite when nothing is queued to expire.
func (k *Kernel) programDeadline() {
	if k.src == nil {
		return
	}
	head := k.wait.next
	if head == &k.wait || head.delay == Infinite {
		k.src.SetDeadline(Infinite)
		return
	}
	k.src.SetDeadline(k.add(head.start, head.delay))
}

// expired reports whether obj's deadline has been reached.
func (k *Kernel) expired(obj *object, now Cnt) bool {
	if obj.delay == Infinite {
		return false
	}
	return cntExpired(obj.start, obj.delay, now, k.mask)
}

// tmrWake fires an expired timer: advance its start by the elapsed delay,
// reload the period (zero stops it), run the callback synchronously, requeue
// if still periodic, and wake every task waiting on it.
func (k *Kernel) tmrWake(tmr *Timer, event Status) {
	tmr.object.start = k.add(tmr.object.start, tmr.object.delay)
	tmr.object.delay = tmr.period

	if b := k.log.Trace(); b.Enabled() {
		b.Uint64(`timer`, tmr.id).Uint64(`tick`, k.now()).Log(`timer fired`)
	}

	if tmr.fn != nil {
		tmr.fn()
	}

	k.tmrRemove(&tmr.object)
	if tmr.object.delay != 0 {
		k.tmrInsert(&tmr.object, idTimer)
	}

	k.allWakeup(&tmr.object, event)
}

// Tick is the tick/timer handler. In ticked mode it advances the counter by
// one; in tickless mode the counter is read from the source. It then wakes
// every expired delayed-queue entry — tasks with Timeout, timers with
// Success — accounts the round-robin slice, and re-programs the next
// deadline. Tick runs in interrupt context: it never suspends the caller,
// and a context switch it posts while a task is mid-flight is delivered at
// that task's next kernel call.
func (k *Kernel) Tick() {
	self := k.lock()
	if self != nil {
		k.rawUnlock()
		panic(`rtkernel: Tick from task context`)
	}

	if _, ok := k.src.(CounterSource); !ok {
		k.counter = k.add(k.counter, 1)
	}
	now := k.now()

	if k.robin && k.cur != &k.idle && k.sub(now, k.sliceStart) >= k.slice {
		k.sliceStart = now
		k.pending = true
	}

	for {
		head := k.wait.next
		if head == &k.wait || !k.expired(head, now) {
			break
		}
		if head.id == idTimer {
			k.tmrWake(head.tmr, Success)
		} else {
			k.tskWakeup(head.tsk, Timeout)
		}
	}

	k.programDeadline()
	k.unlock(nil)
}
