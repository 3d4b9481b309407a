package rtkernel

import "runtime"

// readyInsert places tsk into the ready queue at its priority-ordered slot:
// walk forward from the sentinel while the neighbour's priority is greater
// than or equal to tsk's, splice before the first neighbour of strictly lower
// priority. Equal priorities therefore queue FIFO.
func (k *Kernel) readyInsert(tsk *Task) {
	nxt := &k.idle
	if tsk.prio > 0 {
		for {
			nxt = nxt.object.next.tsk
			if nxt == &k.idle || tsk.prio > nxt.prio {
				break
			}
		}
	}
	listInsert(&tsk.object, idReady, &nxt.object)
}

// readyRemove unlinks tsk from the ready queue.
func (k *Kernel) readyRemove(tsk *Task) {
	listRemove(&tsk.object)
}

// wakeInsert makes tsk ready and posts a context switch when it outranks the
// current task (always, when the CPU is idle; on a priority tie only in
// round-robin mode).
func (k *Kernel) wakeInsert(tsk *Task) {
	k.readyInsert(tsk)
	if k.cur == &k.idle || tsk.prio > k.cur.prio || (k.robin && tsk.prio == k.cur.prio) {
		k.pending = true
	}
}

// schedule is the context-switch handler: it acknowledges the posted switch,
// re-queues the outgoing task if it is still ready (round-robin among equal
// priorities), and grants the virtual CPU to the ready head. A task that has
// never been dispatched gets its goroutine spawned here — the simulation's
// initial exception frame.
//
// Runs under the critical section. Granting does not block: the incoming
// task resumes once the caller leaves the critical section.
func (k *Kernel) schedule() {
	k.pending = false

	cur := k.cur
	if cur != &k.idle && cur.object.id == idReady {
		k.readyRemove(cur)
		k.readyInsert(cur)
	}

	next := k.idle.object.next.tsk
	k.cur = next

	if next == &k.idle {
		k.becomeIdle()
		if b := k.log.Trace(); b.Enabled() {
			b.Uint64(`tick`, k.now()).Log(`cpu idle`)
		}
		return
	}

	k.leaveIdle()
	k.sliceStart = k.now()

	if b := k.log.Trace(); b.Enabled() {
		b.Uint64(`task`, next.id).Uint64(`prio`, uint64(next.prio)).Uint64(`tick`, k.now()).Log(`context switch`)
	}

	if !next.started {
		next.started = true
		go k.trampoline(next, next.gen, next.gate, next.done)
		return
	}

	select {
	case next.gate <- struct{}{}:
	default:
		panic(`rtkernel: double grant`)
	}
}

// trampolineDone reports whether the task goroutine identified by gen/gate
// has been superseded or stopped, scheduling a replacement if it still holds
// the virtual CPU. Runs under the critical section.
func (k *Kernel) trampolineDone(t *Task, gen uint64, gate chan struct{}) bool {
	if t.gen == gen && t.gate == gate && t.object.id != idStopped {
		return false
	}
	if k.cur == t {
		k.schedule()
	}
	return true
}

// contextSwitch is called by the current task's goroutine to give up the
// virtual CPU. It returns, holding the critical section, once the task is
// granted the CPU again; a task killed while parked never returns.
func (k *Kernel) contextSwitch() {
	self := k.cur
	k.schedule()
	if k.cur == self {
		return
	}
	if self.object.id == idStopped {
		// stopped or killed by its own kernel call; nothing will grant again
		k.lockDepth = 0
		k.rawUnlock()
		runtime.Goexit()
	}

	// the critical-section nesting depth belongs to the parked task; restore
	// it when the CPU comes back
	depth := k.lockDepth
	k.lockDepth = 0

	gen := self.gen
	gate := self.gate
	k.rawUnlock()
	<-gate
	k.rawLock()

	if self.gen != gen {
		// killed while parked; the grant was the eviction notice
		if k.cur == self {
			k.schedule()
		}
		k.lockDepth = 0
		k.rawUnlock()
		runtime.Goexit()
	}
	k.lockDepth = depth
}

// trampoline is the body of a task goroutine. When the entry procedure
// returns the task yields once and re-enters its entry, so task objects are
// restarted by the scheduler; termination is explicit via Stop or Kill.
func (k *Kernel) trampoline(t *Task, gen uint64, gate chan struct{}, done chan struct{}) {
	defer close(done)

	k.rawLock()
	if k.trampolineDone(t, gen, gate) {
		k.rawUnlock()
		return
	}
	t.gid = getGoroutineID()
	k.rawUnlock()

	for {
		t.entry()

		k.rawLock()
		if k.trampolineDone(t, gen, gate) {
			k.rawUnlock()
			return
		}
		k.pending = true
		k.contextSwitch()
		k.rawUnlock()
	}
}
