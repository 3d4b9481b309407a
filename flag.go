package rtkernel

// Flag is an event-flag group: a 32-bit mask tasks wait on. A waiter names
// the bits it needs and whether it needs any or all of them; Give sets bits
// and drains every waiter whose predicate now holds, consuming the waiter's
// bits.
type Flag struct {
	object
	k     *Kernel
	flags uint32
}

// NewFlag creates a flag group with the given initial bits.
func NewFlag(k *Kernel, flags uint32) *Flag {
	f := &Flag{}
	f.Init(k, flags)
	return f
}

// Init initialises a statically allocated flag group; see [NewFlag].
func (f *Flag) Init(k *Kernel, flags uint32) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	self := k.lock()
	defer k.unlock(self)
	*f = Flag{k: k, flags: flags}
}

// satisfied reports whether the current bits meet a waiter's request, and
// the bits it would consume.
func (f *Flag) satisfied(mask uint32, all bool) (uint32, bool) {
	got := f.flags & mask
	if all {
		return mask, got == mask
	}
	return got, got != 0
}

// Wait blocks indefinitely until the requested bits are set; all selects
// all-of versus any-of. The matched bits are consumed.
func (f *Flag) Wait(mask uint32, all bool) Status { return f.WaitFor(mask, all, Infinite) }

// Take consumes the requested bits without waiting. Safe from interrupt
// context.
func (f *Flag) Take(mask uint32, all bool) Status {
	self := f.k.lock()
	defer f.k.unlock(self)
	if got, ok := f.satisfied(mask, all); ok {
		f.flags &^= got
		return Success
	}
	return Timeout
}

// WaitFor blocks at most delay ticks until the requested bits are set.
func (f *Flag) WaitFor(mask uint32, all bool, delay Cnt) Status {
	self := f.k.lockTask()
	defer f.k.unlock(self)
	if got, ok := f.satisfied(mask, all); ok {
		f.flags &^= got
		return Success
	}
	self.tmp.mask = mask
	self.tmp.all = all
	return f.k.waitFor(self, &f.object, delay, nil)
}

// WaitUntil is WaitFor against an absolute counter value.
func (f *Flag) WaitUntil(mask uint32, all bool, abs Cnt) Status {
	self := f.k.lockTask()
	defer f.k.unlock(self)
	if got, ok := f.satisfied(mask, all); ok {
		f.flags &^= got
		return Success
	}
	self.tmp.mask = mask
	self.tmp.all = all
	return f.k.waitUntil(self, &f.object, abs, nil)
}

// Give sets bits and wakes every waiter whose predicate now holds, consuming
// each one's matched bits in waiter-priority order. Safe from interrupt
// context.
func (f *Flag) Give(mask uint32) {
	self := f.k.lock()
	defer f.k.unlock(self)
	f.flags |= mask

	w := f.object.queue
	for w != nil {
		nxt := w.object.queue
		if got, ok := f.satisfied(w.tmp.mask, w.tmp.all); ok {
			f.flags &^= got
			f.k.tskWakeup(w, Success)
		}
		w = nxt
	}
}

// Flags returns the currently set bits.
func (f *Flag) Flags() uint32 {
	self := f.k.lock()
	defer f.k.unlock(self)
	return f.flags
}

// Kill resets the group, clearing all bits and waking every waiter with
// Stopped.
func (f *Flag) Kill() {
	self := f.k.lock()
	defer f.k.unlock(self)
	f.flags = 0
	f.k.allWakeup(&f.object, Stopped)
}
