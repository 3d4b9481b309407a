package rtkernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recorder collects observations from task goroutines.
type recorder struct {
	mu sync.Mutex
	s  []string
}

func (r *recorder) log(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = append(r.s, v)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.s...)
}

// checkInvariants asserts the structural invariants of the kernel queues:
// the ready list is priority-descending and ends at the idle sentinel, the
// delayed list is ordered by remaining time, and every delayed task has a
// guard.
func checkInvariants(t *testing.T, k *Kernel) {
	t.Helper()
	k.rawLock()
	defer k.rawUnlock()

	// ready list
	prev := ^uint(0)
	for obj := k.idle.object.next; obj != &k.idle.object; obj = obj.next {
		require.NotNil(t, obj.tsk, `ready list entry without task`)
		require.Equal(t, idReady, obj.id)
		require.LessOrEqual(t, obj.tsk.prio, prev, `ready list not priority-descending`)
		prev = obj.tsk.prio
	}

	// delayed list
	now := k.now()
	var last Cnt
	var lastInf bool
	for obj := k.wait.next; obj != &k.wait; obj = obj.next {
		require.Contains(t, []objID{idDelayed, idTimer}, obj.id)
		if obj.delay == Infinite {
			lastInf = true
			continue
		}
		require.False(t, lastInf, `finite deadline after infinite entry`)
		rem := cntRemaining(obj.start, obj.delay, now, k.mask)
		require.GreaterOrEqual(t, rem, last, `delayed list not deadline-ordered`)
		last = rem
		if obj.tsk != nil {
			require.NotNil(t, obj.tsk.guard, `delayed task without guard`)
		}
	}
}

func TestKernel_New_startsIdle(t *testing.T) {
	k := New()
	assert.Nil(t, k.Current())
	assert.Equal(t, Cnt(0), k.Count())
	require.NoError(t, k.WaitIdle(testCtx(t)))
	checkInvariants(t, k)
}

func TestKernel_Tick_advancesCounter(t *testing.T) {
	k := New()
	for i := 0; i < 5; i++ {
		k.Tick()
	}
	assert.Equal(t, Cnt(5), k.Count())
}

// Two tasks blocked on a semaphore wake in strict priority order: the
// high-priority waiter runs to completion before the low one becomes
// current.
func TestKernel_priorityOrdering(t *testing.T) {
	k := New()
	sem := NewSemaphore(k, 0, 0)
	var rec recorder

	NewTask(k, 1, func() {
		if sem.Wait() == Success {
			rec.log(`low`)
		}
		k.Current().Stop()
	})
	NewTask(k, 3, func() {
		if sem.Wait() == Success {
			rec.log(`high`)
		}
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	checkInvariants(t, k)

	require.Equal(t, Success, sem.Give())
	require.Equal(t, Success, sem.Give())
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, []string{`high`, `low`}, rec.all())
	assert.Equal(t, uint(0), sem.Count())
	checkInvariants(t, k)
}

// Equal priorities run FIFO, and Yield rotates between them.
func TestKernel_yieldRoundRobin(t *testing.T) {
	k := New()
	bar := NewBarrier(k, 2)
	var rec recorder

	entry := func(name string) func() {
		return func() {
			bar.Wait() // line both tasks up before the first yield
			for i := 0; i < 3; i++ {
				rec.log(name)
				k.Yield()
			}
			k.Current().Stop()
		}
	}
	NewTask(k, 1, entry(`a`))
	NewTask(k, 1, entry(`b`))
	require.NoError(t, k.WaitIdle(testCtx(t)))

	// b completes the barrier, so it logs first; yields then alternate
	assert.Equal(t, []string{`b`, `a`, `b`, `a`, `b`, `a`}, rec.all())
}

// In round-robin mode the running task is preempted at its next kernel call
// in favour of its equal-priority peer. Making the peer ready already posts
// the switch (an equal-priority wake in round-robin mode), so the peer may
// run before the Tick below expires the slice.
func TestKernel_roundRobinSlice(t *testing.T) {
	k := New(WithRoundRobin(1))
	ranB := make(chan struct{})
	stop := make(chan struct{})

	NewTask(k, 1, func() {
		for {
			select {
			case <-stop:
				k.Current().Stop()
			default:
				k.Count() // kernel call; preemption delivery point
			}
		}
	})
	b := NewTask(k, 1, func() {
		close(ranB)
		k.Current().Stop()
	})
	_ = b

	k.Tick()
	select {
	case <-ranB:
	case <-time.After(10 * time.Second):
		t.Fatal(`peer never scheduled`)
	}
	close(stop)
	require.NoError(t, k.WaitIdle(testCtx(t)))
}

func TestKernel_sleepFor(t *testing.T) {
	k := New()
	var rec recorder

	NewTask(k, 1, func() {
		rec.log(k.SleepFor(3).String())
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	checkInvariants(t, k)
	assert.Empty(t, rec.all())

	k.Tick()
	k.Tick()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Empty(t, rec.all(), `woke before the deadline`)

	k.Tick()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, []string{`Timeout`}, rec.all())
}

func TestKernel_sleepUntil(t *testing.T) {
	k := New()
	done := make(chan Status, 1)

	NewTask(k, 1, func() {
		done <- k.SleepUntil(4)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	for i := 0; i < 4; i++ {
		k.Tick()
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))
	select {
	case st := <-done:
		assert.Equal(t, Timeout, st)
	default:
		t.Fatal(`task still asleep`)
	}
}

func TestKernel_killWhileWaiting(t *testing.T) {
	k := New()
	tsk := NewTask(k, 1, func() {
		k.SleepFor(Infinite)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	tsk.Kill()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	require.NoError(t, tsk.Join(testCtx(t)))
	checkInvariants(t, k)

	// idempotent
	tsk.Kill()
	require.NoError(t, tsk.Join(testCtx(t)))
}

func TestKernel_killRunning(t *testing.T) {
	k := New()
	spinning := make(chan struct{})
	var once sync.Once

	tsk := NewTask(k, 1, func() {
		for {
			once.Do(func() { close(spinning) })
			k.Count() // eviction delivery point
		}
	})
	<-spinning

	tsk.Kill()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	require.NoError(t, tsk.Join(testCtx(t)))
	assert.Nil(t, k.Current())
}

// Killing a task resets its saved context: a restart re-enters the entry
// procedure from the top.
func TestKernel_killThenRestart(t *testing.T) {
	k := New()
	entered := make(chan struct{}, 2)

	tsk := NewTask(k, 1, func() {
		entered <- struct{}{}
		k.SleepFor(Infinite)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	<-entered

	tsk.Kill()
	require.NoError(t, tsk.Join(testCtx(t)))

	tsk.Start()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	select {
	case <-entered:
	default:
		t.Fatal(`restart did not re-enter the entry procedure`)
	}
	tsk.Kill()
	require.NoError(t, k.WaitIdle(testCtx(t)))
}

func TestKernel_shutdown(t *testing.T) {
	k := New()
	for i := 0; i < 3; i++ {
		NewTask(k, uint(i+1), func() {
			k.SleepFor(Infinite)
			k.Current().Stop()
		})
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))

	require.NoError(t, k.Shutdown(testCtx(t)))
	require.NoError(t, k.Shutdown(testCtx(t)), `Shutdown is idempotent`)
	assert.ErrorIs(t, k.Start(), ErrKernelStopped)
}

func TestKernel_blockingFromInterruptContextPanics(t *testing.T) {
	k := New()
	sem := NewSemaphore(k, 0, 0)
	assert.Panics(t, func() { sem.Wait() })
	assert.Panics(t, func() { k.Yield() })
	assert.Panics(t, func() { k.SleepFor(1) })
}

func TestKernel_structuredLogging(t *testing.T) {
	var buf safeBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	)

	k := New(WithLogger(logger.Logger()))
	tsk := NewTask(k, 2, func() {
		k.SleepFor(1)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	k.Tick()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	require.NoError(t, tsk.Join(testCtx(t)))

	out := buf.String()
	assert.Contains(t, out, `task created`)
	assert.Contains(t, out, `context switch`)
	assert.Contains(t, out, `task stopped`)
}

// safeBuffer is a goroutine-safe io.Writer for test log capture.
type safeBuffer struct {
	mu sync.Mutex
	b  []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.b = append(b.b, p...)
	return len(p), nil
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.b)
}
