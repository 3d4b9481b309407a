package rtkernel

import "golang.org/x/exp/constraints"

// Cnt is a tick count or tick duration. The counter is 64-bit by default;
// [WithCounterBits] narrows the effective width, in which case all counter
// arithmetic wraps at the configured width.
type Cnt = uint64

const (
	// Immediate means "poll, do not block".
	Immediate Cnt = 0
	// Infinite means "no deadline". It disables expiry for the waiter it is
	// applied to. Delays other than Infinite must be below half the counter
	// range for the wrap-safe deadline arithmetic to hold.
	Infinite Cnt = ^Cnt(0)
)

// cntExpired reports whether the deadline start+delay has been reached,
// as the unsigned predicate delay <= now-start, which is robust to counter
// wrap-around provided delay is below half the counter range. All operands
// are interpreted modulo mask+1.
func cntExpired[T constraints.Unsigned](start, delay, now, mask T) bool {
	return delay <= (now-start)&mask
}

// cntRemaining returns the ticks left until start+delay, modulo mask+1.
// Meaningless once the deadline has passed; check cntExpired first.
func cntRemaining[T constraints.Unsigned](start, delay, now, mask T) T {
	return (delay - ((now - start) & mask)) & mask
}
