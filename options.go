package rtkernel

import (
	"github.com/joeycumines/logiface"
)

// kernelOptions holds configuration for New.
type kernelOptions struct {
	mask  Cnt
	slice Cnt
	src   TickSource
	log   *logiface.Logger[logiface.Event]
}

// Option configures a [Kernel] instance.
type Option interface {
	apply(*kernelOptions)
}

type optionImpl struct {
	applyFunc func(*kernelOptions)
}

func (o *optionImpl) apply(opts *kernelOptions) {
	o.applyFunc(opts)
}

// WithLogger sets the structured logger the kernel emits scheduler, timer
// and lifecycle events to. A nil logger (the default) disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *kernelOptions) {
		opts.log = log
	}}
}

// WithTickSource sets the source driving [Kernel.Tick]. Without one, nothing
// advances the counter until Tick is called directly.
func WithTickSource(src TickSource) Option {
	return &optionImpl{func(opts *kernelOptions) {
		opts.src = src
	}}
}

// WithRoundRobin enables round-robin scheduling between equal-priority
// tasks, rotating the running task every slice ticks. A zero slice disables
// it (the default); tasks then run until they block or a higher priority
// becomes ready.
func WithRoundRobin(slice Cnt) Option {
	return &optionImpl{func(opts *kernelOptions) {
		opts.slice = slice
	}}
}

// WithCounterBits narrows the tick counter to the given width (32..64).
// All counter arithmetic then wraps at that width; delays must stay below
// half the narrowed range. Panics on a width outside 32..64.
func WithCounterBits(bits uint) Option {
	if bits < 32 || bits > 64 {
		panic(`rtkernel: counter width must be 32..64 bits`)
	}
	return &optionImpl{func(opts *kernelOptions) {
		if bits == 64 {
			opts.mask = Infinite
		} else {
			opts.mask = (Cnt(1) << bits) - 1
		}
	}}
}

// resolveOptions applies Option instances over the defaults.
func resolveOptions(opts []Option) *kernelOptions {
	cfg := &kernelOptions{
		mask: Infinite,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
