package rtkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// give then take on a counting semaphore is a no-op on the counter.
func TestSemaphore_giveTakeRoundTrip(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 2, 0)

	require.Equal(t, Success, s.Give())
	require.Equal(t, Success, s.Take())
	assert.Equal(t, uint(2), s.Count())
}

func TestSemaphore_takeEmpty(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 0, 0)
	assert.Equal(t, Timeout, s.Take())
}

func TestSemaphore_limit(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 0, 2)
	require.Equal(t, Success, s.Give())
	require.Equal(t, Success, s.Give())
	assert.Equal(t, Overflow, s.Give())
	assert.Equal(t, uint(2), s.Count())
}

// A bounded wait on a starved semaphore times out exactly once, leaving the
// waiter queue empty.
func TestSemaphore_timeoutUnderStarvation(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 0, 0)
	got := make(chan Status, 1)

	NewTask(k, 1, func() {
		got <- s.WaitFor(100)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	checkInvariants(t, k)

	for i := 0; i < 99; i++ {
		k.Tick()
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))
	select {
	case <-got:
		t.Fatal(`woke before the deadline`)
	default:
	}

	k.Tick()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Timeout, <-got)

	k.rawLock()
	assert.Nil(t, s.object.queue, `waiter queue must be empty after timeout`)
	k.rawUnlock()
}

// Killing a semaphore wakes its waiters with Stopped and resets the counter.
func TestSemaphore_killWhileWaiting(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 0, 0)
	got := make(chan Status, 1)

	NewTask(k, 1, func() {
		got <- s.Wait()
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	s.Kill()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Stopped, <-got)
	assert.Equal(t, uint(0), s.Count())

	k.rawLock()
	assert.Nil(t, s.object.queue)
	k.rawUnlock()

	// a second kill with no waiters is a no-op
	s.Kill()
	assert.Equal(t, uint(0), s.Count())
}

func TestSemaphore_waitUntil(t *testing.T) {
	k := New()
	s := NewSemaphore(k, 0, 0)
	got := make(chan Status, 1)

	NewTask(k, 1, func() {
		got <- s.WaitUntil(3)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	k.Tick()
	k.Tick()
	k.Tick()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Timeout, <-got)
}

func TestSignal(t *testing.T) {
	k := New()
	s := NewSignal(k)

	// latch then consume
	s.Give()
	assert.Equal(t, Success, s.Take())
	assert.Equal(t, Timeout, s.Take())

	// direct handoff to a waiter
	got := make(chan Status, 1)
	NewTask(k, 1, func() {
		got <- s.Wait()
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))
	s.Give()
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Success, <-got)
	assert.Equal(t, Timeout, s.Take(), `handoff must not latch`)
}

func TestEvent_broadcast(t *testing.T) {
	k := New()
	e := NewEvent(k)
	got := make(chan uint, 2)

	for i := 0; i < 2; i++ {
		NewTask(k, 1, func() {
			v, st := e.Wait()
			if st == Success {
				got <- v
			}
			k.Current().Stop()
		})
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))

	e.Give(42)
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, uint(42), <-got)
	assert.Equal(t, uint(42), <-got)
}

func TestFlag(t *testing.T) {
	k := New()
	f := NewFlag(k, 0)

	f.Give(0b0011)
	assert.Equal(t, Success, f.Take(0b0001, false))
	assert.Equal(t, uint32(0b0010), f.Flags())
	assert.Equal(t, Timeout, f.Take(0b0101, true), `all-of with missing bits`)

	// all-of waiter drains once the last bit arrives
	got := make(chan Status, 1)
	NewTask(k, 1, func() {
		got <- f.Wait(0b0110, true)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	f.Give(0b0100)
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Success, <-got)
	assert.Equal(t, uint32(0), f.Flags(), `matched bits are consumed`)
}

func TestBarrier(t *testing.T) {
	k := New()
	b := NewBarrier(k, 3)
	var rec recorder

	for i := 0; i < 3; i++ {
		NewTask(k, 1, func() {
			if b.Wait() == Success {
				rec.log(`released`)
			}
			k.Current().Stop()
		})
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, []string{`released`, `released`, `released`}, rec.all())
	checkInvariants(t, k)
}

func TestBarrier_timeoutUnarrives(t *testing.T) {
	k := New()
	b := NewBarrier(k, 2)
	got := make(chan Status, 1)

	NewTask(k, 1, func() {
		got <- b.WaitFor(5)
		k.Current().Stop()
	})
	require.NoError(t, k.WaitIdle(testCtx(t)))

	for i := 0; i < 5; i++ {
		k.Tick()
	}
	require.NoError(t, k.WaitIdle(testCtx(t)))
	assert.Equal(t, Timeout, <-got)

	k.rawLock()
	assert.Equal(t, uint(2), b.count, `timed-out arrival must be returned`)
	k.rawUnlock()
}
