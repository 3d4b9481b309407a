package rtkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Priority inheritance: while a high-priority task waits on a mutex, the
// owner runs at the waiter's priority, and drops back on unlock — at which
// point the waiter becomes current immediately.
func TestMutex_priorityInheritance(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	gate := NewSemaphore(k, 0, 0)
	var rec recorder

	low := NewTask(k, 1, func() {
		require.Equal(t, Success, m.Lock())
		gate.Wait() // hold the mutex across the high-priority arrival
		require.Equal(t, Success, m.Unlock())
		rec.log(`low after unlock`)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	NewTask(k, 3, func() {
		if m.Lock() == Success {
			rec.log(`high got lock`)
			m.Unlock()
		}
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, uint(3), low.Prio(), `owner must inherit the waiter's priority`)
	assert.Equal(t, uint(1), low.BasicPrio())
	checkInvariants(t, k)

	gate.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, []string{`high got lock`, `low after unlock`}, rec.all())
	assert.Equal(t, uint(1), low.Prio(), `priority restored after unlock`)
}

// Transitive inheritance through a chain of held mutexes: raising the tail
// waiter raises every owner along the chain.
func TestMutex_transitiveInheritance(t *testing.T) {
	k := New()
	m1 := NewMutex(k, false)
	m2 := NewMutex(k, false)
	gate := NewSemaphore(k, 0, 0)
	var rec recorder

	t0 := NewTask(k, 0, func() {
		require.Equal(t, Success, m2.Lock())
		gate.Wait()
		require.Equal(t, Success, m2.Unlock())
		rec.log(`t0 released m2`)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	t1 := NewTask(k, 1, func() {
		require.Equal(t, Success, m1.Lock())
		require.Equal(t, Success, m2.Lock())
		rec.log(`t1 got m2`)
		require.Equal(t, Success, m1.Unlock())
		rec.log(`t1 released m1`)
		require.Equal(t, Success, m2.Unlock())
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	NewTask(k, 3, func() {
		if m1.Lock() == Success {
			rec.log(`t3 got m1`)
			m1.Unlock()
		}
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, uint(3), t1.Prio(), `direct inheritance`)
	assert.Equal(t, uint(3), t0.Prio(), `transitive inheritance`)
	checkInvariants(t, k)

	gate.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, []string{
		`t1 got m2`,
		`t3 got m1`,
		`t1 released m1`,
		`t0 released m2`,
	}, rec.all())
	assert.Equal(t, uint(0), t0.Prio())
	assert.Equal(t, uint(1), t1.Prio())
}

// lock; unlock by a single task leaves all state, including its own
// priority, identical to before.
func TestMutex_lockUnlockRoundTrip(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	done := make(chan struct{})

	NewTask(k, 2, func() {
		self := k.Current()
		before := self.Prio()
		require.Equal(t, Success, m.Lock())
		require.Equal(t, Success, m.Unlock())
		assert.Equal(t, before, self.Prio())
		close(done)
		k.SleepFor(Infinite)
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	<-done

	k.rawLock()
	assert.Nil(t, m.owner)
	assert.Nil(t, m.object.queue)
	k.rawUnlock()
	require.NoError(t, k.Shutdown(testCtx(t)))
}

func TestMutex_errors(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	done := make(chan struct{})

	NewTask(k, 1, func() {
		assert.Equal(t, NotOwner, m.Unlock(), `unlock without lock`)
		require.Equal(t, Success, m.Lock())
		assert.Equal(t, Deadlock, m.Lock(), `non-recursive re-lock`)
		require.Equal(t, Success, m.Unlock())
		close(done)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	<-done
}

func TestMutex_recursive(t *testing.T) {
	k := New()
	m := NewMutex(k, true)
	done := make(chan struct{})

	NewTask(k, 1, func() {
		require.Equal(t, Success, m.Lock())
		require.Equal(t, Success, m.Lock())
		require.Equal(t, Success, m.Unlock())
		// still owned; a second task must not get it
		require.Equal(t, Success, m.Unlock())
		close(done)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	<-done

	k.rawLock()
	assert.Nil(t, m.owner)
	k.rawUnlock()
}

func TestMutex_lockTimeout(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	gate := NewSemaphore(k, 0, 0)
	got := make(chan Status, 1)

	NewTask(k, 2, func() {
		require.Equal(t, Success, m.Lock())
		gate.Wait()
		m.Unlock()
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	owner := NewTask(k, 1, func() {
		got <- m.LockFor(5)
		k.Current().Stop()
	})
	_ = owner
	require.NoError(t, k.WaitIdle(testCtx(t)))

	for i := 0; i < 5; i++ {
		k.Tick()
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Timeout, <-got)
	checkInvariants(t, k)

	gate.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))
}

func TestMutex_killWakesWaiters(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	gate := NewSemaphore(k, 0, 0)
	got := make(chan Status, 1)

	NewTask(k, 2, func() {
		require.Equal(t, Success, m.Lock())
		gate.Wait()
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	NewTask(k, 1, func() {
		got <- m.Lock()
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	m.Kill()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Stopped, <-got)

	k.rawLock()
	assert.Nil(t, m.owner)
	assert.Nil(t, m.object.queue)
	k.rawUnlock()

	gate.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))
}

func TestFastMutex(t *testing.T) {
	k := New()
	m := NewFastMutex(k)
	gate := NewSemaphore(k, 0, 0)
	var rec recorder

	holder := NewTask(k, 1, func() {
		require.Equal(t, Success, m.Lock())
		assert.Equal(t, Deadlock, m.Lock())
		gate.Wait()
		require.Equal(t, Success, m.Unlock())
		rec.log(`holder released`)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	NewTask(k, 3, func() {
		assert.Equal(t, NotOwner, m.Unlock())
		if m.Lock() == Success {
			rec.log(`waiter got lock`)
			m.Unlock()
		}
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	// no inheritance: the holder keeps its basic priority
	assert.Equal(t, uint(1), holder.Prio())

	gate.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, []string{`waiter got lock`, `holder released`}, rec.all())
}

func TestCondVar(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	c := NewCondVar(k)
	var rec recorder
	ready := 0

	for i := 0; i < 2; i++ {
		NewTask(k, 2, func() {
			require.Equal(t, Success, m.Lock())
			for ready == 0 {
				require.Equal(t, Success, c.Wait(m))
			}
			ready--
			rec.log(`consumed`)
			require.Equal(t, Success, m.Unlock())
			k.Current().Stop()
		})
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))

	NewTask(k, 1, func() {
		for i := 0; i < 2; i++ {
			require.Equal(t, Success, m.Lock())
			ready++
			require.Equal(t, Success, m.Unlock())
			c.Signal()
		}
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	assert.Equal(t, []string{`consumed`, `consumed`}, rec.all())
}

func TestCondVar_notOwner(t *testing.T) {
	k := New()
	m := NewMutex(k, false)
	c := NewCondVar(k)
	done := make(chan struct{})

	NewTask(k, 1, func() {
		assert.Equal(t, NotOwner, c.Wait(m))
		close(done)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	<-done
}
