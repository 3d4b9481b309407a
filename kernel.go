package rtkernel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrKernelStopped is returned when operations are attempted on a kernel
	// that has been shut down.
	ErrKernelStopped = errors.New(`rtkernel: kernel has been stopped`)
)

// Kernel is the scheduling and waiting core. It owns exactly two mutable
// queue roots — the ready-queue sentinel (the idle task) and the
// delayed-queue sentinel — plus the tick counter and the current task.
// Every queue mutation happens under the kernel critical section.
//
// The zero value is not usable; construct with [New].
type Kernel struct {
	// Prevent copying
	_ [0]func()

	mu        sync.Mutex    // the critical section ("interrupt mask")
	lockGid   atomic.Uint64 // goroutine holding the critical section
	lockDepth int           // nesting depth of the holder

	idle Task   // ready-queue sentinel; priority 0; owns no goroutine
	wait object // delayed-queue sentinel; delay Infinite

	counter Cnt
	mask    Cnt
	cur     *Task
	pending bool // a context switch has been posted

	robin      bool
	slice      Cnt
	sliceStart Cnt

	src TickSource
	log *logiface.Logger[logiface.Event]

	tasks   []*Task       // every task ever registered; Shutdown kills them
	idleCh  chan struct{} // closed while the virtual CPU is idle
	stopped bool
}

// New creates a kernel. The counter starts at zero and nothing ticks until a
// tick source is started ([Kernel.Start]) or [Kernel.Tick] is called
// directly.
func New(opts ...Option) *Kernel {
	cfg := resolveOptions(opts)

	k := &Kernel{
		mask: cfg.mask,
		src:  cfg.src,
		log:  cfg.log,
	}

	k.idle.object.id = idIdle
	k.idle.object.prev = &k.idle.object
	k.idle.object.next = &k.idle.object
	k.idle.object.tsk = &k.idle
	k.idle.k = k
	k.idle.id = taskIDCounter.Add(1)

	k.wait.id = idTimer
	k.wait.prev = &k.wait
	k.wait.next = &k.wait
	k.wait.delay = Infinite

	k.cur = &k.idle
	k.idleCh = closedChan()

	k.robin = cfg.slice > 0
	k.slice = cfg.slice

	return k
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// rawLock and rawUnlock take and release the critical section without the
// nesting bookkeeping of lock/unlock. For internal paths that are outermost
// by construction (the trampoline, context-switch parking, observers).
func (k *Kernel) rawLock() {
	k.mu.Lock()
	k.lockGid.Store(getGoroutineID())
}

func (k *Kernel) rawUnlock() {
	k.lockGid.Store(0)
	k.mu.Unlock()
}

// lock enters the critical section; critical sections nest per goroutine, so
// a timer callback running under the tick handler may call non-blocking
// kernel APIs. It returns the calling task when the caller is the current
// task's goroutine (task context), or nil for interrupt context. A task
// killed while running exits here, at its next kernel call, without touching
// kernel state.
func (k *Kernel) lock() *Task {
	gid := getGoroutineID()
	outer := true
	if k.lockGid.Load() == gid {
		k.lockDepth++
		outer = false
	} else {
		k.mu.Lock()
		k.lockGid.Store(gid)
	}
	cur := k.cur
	if cur != &k.idle && cur.gid == gid {
		if cur.object.id == idStopped && outer {
			k.schedule()
			k.rawUnlock()
			runtime.Goexit()
		}
		return cur
	}
	return nil
}

// lockTask is lock for thread-only APIs: it panics when called from
// interrupt context.
func (k *Kernel) lockTask() *Task {
	if self := k.lock(); self != nil {
		return self
	}
	k.unlock(nil)
	panic(`rtkernel: blocking call from interrupt context`)
}

// unlock leaves the critical section. The outermost leave delivers any
// posted context switch: the running task yields here; interrupt context
// grants the CPU directly when it is idle. A task goroutine exiting through
// runtime.Goexit has already left the critical section; its deferred unlocks
// are no-ops.
func (k *Kernel) unlock(self *Task) {
	if k.lockGid.Load() != getGoroutineID() {
		return
	}
	if k.lockDepth > 0 {
		k.lockDepth--
		return
	}
	if k.pending {
		if self != nil {
			k.contextSwitch()
		} else if k.cur == &k.idle {
			k.schedule()
		}
	}
	k.rawUnlock()
}

// add and sub perform counter arithmetic at the configured width.
func (k *Kernel) add(a, b Cnt) Cnt { return (a + b) & k.mask }
func (k *Kernel) sub(a, b Cnt) Cnt { return (a - b) & k.mask }

// now returns the counter, reading the hardware source in tickless mode.
func (k *Kernel) now() Cnt {
	if cs, ok := k.src.(CounterSource); ok {
		return cs.Now() & k.mask
	}
	return k.counter
}

// Count returns the current value of the tick counter.
func (k *Kernel) Count() Cnt {
	self := k.lock()
	defer k.unlock(self)
	return k.now()
}

// Current returns the task owning the virtual CPU, or nil when the kernel is
// idle. From within a task's entry procedure it returns that task.
func (k *Kernel) Current() *Task {
	self := k.lock()
	defer k.unlock(self)
	if k.cur == &k.idle {
		return nil
	}
	return k.cur
}

// Start begins tick delivery from the configured tick source. It returns
// immediately; the kernel is driven by the source until [Kernel.Shutdown].
// A kernel without a tick source needs no Start — drive [Kernel.Tick]
// directly.
func (k *Kernel) Start() error {
	k.rawLock()
	if k.stopped {
		k.rawUnlock()
		return ErrKernelStopped
	}
	src := k.src
	k.rawUnlock()
	if src != nil {
		src.Start(k)
	}
	return nil
}

// Shutdown stops the tick source, kills every task, and waits for the
// virtual CPU to go idle. It is idempotent.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.rawLock()
	if k.stopped {
		k.rawUnlock()
		return nil
	}
	k.stopped = true
	src := k.src
	tasks := append([]*Task(nil), k.tasks...)
	k.rawUnlock()

	if src != nil {
		src.Stop()
	}
	for _, t := range tasks {
		t.Kill()
	}
	return k.WaitIdle(ctx)
}

// WaitIdle blocks until the virtual CPU is idle and no context switch is
// pending — every task is blocked, delayed or stopped. It is the
// quiescence point interrupt-context callers synchronise on.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	for {
		if self := k.lock(); self != nil || k.lockDepth > 0 {
			k.unlock(self)
			panic(`rtkernel: WaitIdle from kernel context`)
		}
		if k.cur == &k.idle && !k.pending {
			k.unlock(nil)
			return nil
		}
		ch := k.idleCh
		k.unlock(nil)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// becomeIdle and leaveIdle maintain the idle notification channel. Both run
// under the critical section.
func (k *Kernel) becomeIdle() {
	select {
	case <-k.idleCh:
	default:
		close(k.idleCh)
	}
}

func (k *Kernel) leaveIdle() {
	select {
	case <-k.idleCh:
		k.idleCh = make(chan struct{})
	default:
	}
}
