package rtkernel

import "unsafe"

// MemPool is a fixed pool of blocks with the free list threaded through the
// block storage by index. Take unlinks a free block, Give relinks one; an
// empty pool blocks like an empty queue, handing returned blocks directly to
// the head waiter.
type MemPool[T any] struct {
	object
	k      *Kernel
	blocks []T
	next   []int32 // free-list links, parallel to blocks
	free   int32   // head of the free list, -1 when exhausted
}

// NewMemPool creates a pool of limit blocks. Panics on a non-positive limit
// or a zero-size block type.
func NewMemPool[T any](k *Kernel, limit int) *MemPool[T] {
	p := &MemPool[T]{}
	p.Init(k, limit)
	return p
}

// Init initialises a statically allocated pool; see [NewMemPool].
func (p *MemPool[T]) Init(k *Kernel, limit int) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit <= 0 {
		panic(`rtkernel: non-positive pool limit`)
	}
	if unsafe.Sizeof(*new(T)) == 0 {
		panic(`rtkernel: zero-size pool block`)
	}
	self := k.lock()
	defer k.unlock(self)
	*p = MemPool[T]{k: k, blocks: make([]T, limit), next: make([]int32, limit)}
	p.reset()
}

func (p *MemPool[T]) reset() {
	for i := range p.next {
		p.next[i] = int32(i + 1)
	}
	p.next[len(p.next)-1] = -1
	p.free = 0
}

func (p *MemPool[T]) take() *T {
	if p.free < 0 {
		return nil
	}
	i := p.free
	p.free = p.next[i]
	p.next[i] = -1
	return &p.blocks[i]
}

// index recovers the block index from its pointer, asserting it belongs to
// this pool.
func (p *MemPool[T]) index(blk *T) int32 {
	base := uintptr(unsafe.Pointer(&p.blocks[0]))
	off := uintptr(unsafe.Pointer(blk)) - base
	size := unsafe.Sizeof(p.blocks[0])
	if off%size != 0 || off/size >= uintptr(len(p.blocks)) {
		panic(`rtkernel: block does not belong to this pool`)
	}
	return int32(off / size)
}

// Wait takes a block, waiting indefinitely while the pool is empty.
func (p *MemPool[T]) Wait() (*T, Status) { return p.WaitFor(Infinite) }

// Take takes a block without waiting, returning a nil block and Timeout when
// the pool is empty. Safe from interrupt context.
func (p *MemPool[T]) Take() (*T, Status) {
	self := p.k.lock()
	defer p.k.unlock(self)
	if blk := p.take(); blk != nil {
		return blk, Success
	}
	return nil, Timeout
}

// WaitFor takes a block, waiting at most delay ticks while the pool is
// empty.
func (p *MemPool[T]) WaitFor(delay Cnt) (*T, Status) {
	self := p.k.lockTask()
	defer p.k.unlock(self)
	if blk := p.take(); blk != nil {
		return blk, Success
	}
	var blk *T
	self.tmp.slot = &blk
	st := p.k.waitFor(self, &p.object, delay, nil)
	return blk, st
}

// WaitUntil is WaitFor against an absolute counter value.
func (p *MemPool[T]) WaitUntil(abs Cnt) (*T, Status) {
	self := p.k.lockTask()
	defer p.k.unlock(self)
	if blk := p.take(); blk != nil {
		return blk, Success
	}
	var blk *T
	self.tmp.slot = &blk
	st := p.k.waitUntil(self, &p.object, abs, nil)
	return blk, st
}

// Give returns a block to the pool, handing it directly to the head waiter
// when one is parked. The block's contents are zeroed. Safe from interrupt
// context. Panics when blk does not belong to this pool.
func (p *MemPool[T]) Give(blk *T) {
	if blk == nil {
		panic(`rtkernel: nil pool block`)
	}
	self := p.k.lock()
	defer p.k.unlock(self)

	i := p.index(blk)
	*blk = *new(T)

	if w := p.object.queue; w != nil {
		*w.tmp.slot.(**T) = blk
		p.next[i] = -1
		p.k.tskWakeup(w, Success)
		return
	}
	p.next[i] = p.free
	p.free = i
}

// Kill wakes every waiter with Stopped. The free list is left as it stands:
// blocks already handed out stay owned by their holders and may still be
// Given back.
func (p *MemPool[T]) Kill() {
	self := p.k.lock()
	defer p.k.unlock(self)
	p.k.allWakeup(&p.object, Stopped)
}
