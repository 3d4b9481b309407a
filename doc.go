// Package rtkernel implements a preemptive, priority-based real-time kernel
// for Go, modelled on the small-MCU RTOS design: tasks, a ticked or tickless
// time base, timers, and a family of blocking synchronisation and
// communication primitives (mutexes, semaphores, condition variables,
// barriers, event flags, mailbox and message queues, job queues, memory
// pools, stream and message buffers).
//
// # Architecture
//
// The kernel core is a scheduling and waiting engine:
//   - a strictly priority-ordered ready queue, rooted at an always-present
//     idle sentinel, with FIFO tie-break between equal priorities;
//   - a deadline-ordered delayed queue holding both tasks waiting with a
//     timeout and periodic [Timer] objects;
//   - a generic wait-on-object protocol (suspend, timeout, wake-one,
//     wake-all) shared by every blocking primitive;
//   - a priority-inheritance [Mutex] with transitive propagation through
//     the chain of held mutexes.
//
// All other primitives are thin specialisations of the same wait/wake
// mechanism over a per-object, priority-ordered waiter queue.
//
// # Execution Model
//
// Context switching is simulated with cooperative task handles: each [Task]
// is a goroutine, and exactly one task goroutine executes at a time (it owns
// the virtual CPU). A task gives up the CPU only inside kernel calls — when
// it blocks, yields, or is preempted by a higher-priority task made ready
// during the call. Interrupt context is any goroutine that is not the
// current task: the tick source, and callers of the non-blocking
// Give/Push/Take variants. A context switch posted from interrupt context
// while a task is mid-flight in user code is delivered at that task's next
// kernel call; while the CPU is idle it is delivered immediately.
//
// A task whose entry procedure returns is restarted by the scheduler: the
// kernel yields once, then re-enters the entry. Tasks terminate for good via
// [Task.Stop] (self) or [Task.Kill] (any context).
//
// # Time
//
// The time base is a monotonic tick counter, 64-bit by default and
// configurable down to 32 bits ([WithCounterBits]); deadline comparisons use
// unsigned wrap-safe deltas. [ManualClock] drives the counter explicitly
// (deterministic tests), [PeriodicClock] ticks at a fixed frequency, and
// [TicklessClock] derives the counter from wall time and programs a single
// timer for the next deadline.
//
// # Return Codes
//
// Blocking calls return a [Status]: [Success], [Timeout] (deadline reached
// first), [Stopped] (object killed while waiting), or a primitive-specific
// code such as [NotOwner], [Deadlock] or [Overflow]. [Immediate] and
// [Infinite] are the two reserved delay sentinels ("poll" and "no
// deadline"); every blocking verb has both a _For (relative) and _Until
// (absolute) form.
//
// Programming errors — blocking from interrupt context, stopping or killing
// a task that still owns mutexes, giving a memory pool a block it does not
// own — panic rather than return. Unlocking a mutex the caller does not own
// is not one of them: it returns [NotOwner].
//
// # Usage
//
//	k := rtkernel.New()
//	sem := rtkernel.NewSemaphore(k, 0, 1)
//
//	rtkernel.NewTask(k, 2, func() {
//	    if sem.Wait() == rtkernel.Success {
//	        // ...
//	    }
//	    k.Current().Stop()
//	})
//
//	sem.Give()                          // interrupt-context give
//	_ = k.WaitIdle(context.Background()) // quiesce
package rtkernel
