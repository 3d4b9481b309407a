package rtkernel

// StreamBuf is a byte-granular stream buffer. Transfers coalesce: a send
// tops up parked receivers directly, then fills the ring, parking with the
// remainder only when the ring is full; a receive drains the ring and tops
// up from parked senders. A parked receiver wakes as soon as any bytes
// arrive.
type StreamBuf struct {
	object
	k          *Kernel
	data       []byte
	count      int
	head, tail int
}

// NewStreamBuf creates a stream buffer over limit bytes of ring storage.
// Panics on a non-positive limit.
func NewStreamBuf(k *Kernel, limit int) *StreamBuf {
	s := &StreamBuf{}
	s.Init(k, limit)
	return s
}

// Init initialises a statically allocated stream buffer; see [NewStreamBuf].
func (s *StreamBuf) Init(k *Kernel, limit int) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit <= 0 {
		panic(`rtkernel: non-positive stream buffer limit`)
	}
	self := k.lock()
	defer k.unlock(self)
	*s = StreamBuf{k: k, data: make([]byte, limit)}
}

func (s *StreamBuf) get(dst []byte) {
	i := s.head
	s.count -= len(dst)
	for n := range dst {
		dst[n] = s.data[i]
		i++
		if i == len(s.data) {
			i = 0
		}
	}
	s.head = i
}

func (s *StreamBuf) put(src []byte) {
	i := s.tail
	s.count += len(src)
	for n := range src {
		s.data[i] = src[n]
		i++
		if i == len(s.data) {
			i = 0
		}
	}
	s.tail = i
}

func (s *StreamBuf) skip(n int) {
	s.count -= n
	s.head += n
	if s.head >= len(s.data) {
		s.head -= len(s.data)
	}
}

// drainSenders tops up the ring from parked senders after a receive freed
// space. A sender wakes only once its whole transfer is through.
func (s *StreamBuf) drainSenders() {
	for {
		w := s.object.queue
		if w == nil {
			return
		}
		n := min(len(s.data)-s.count, w.tmp.size)
		if n == 0 {
			return
		}
		s.put(w.tmp.out[:n])
		w.tmp.out = w.tmp.out[n:]
		w.tmp.size -= n
		if w.tmp.size > 0 {
			return
		}
		s.k.tskWakeup(w, Success)
	}
}

// putUpdate writes src: parked receivers first, straight into their scratch
// buffers, then the ring up to its space. Returns the bytes consumed.
func (s *StreamBuf) putUpdate(src []byte) int {
	total := len(src)

	for s.count == 0 && len(src) > 0 {
		w := s.object.queue
		if w == nil {
			break
		}
		n := min(w.tmp.size, len(src))
		copy(w.tmp.in[len(w.tmp.in)-w.tmp.size:], src[:n])
		w.tmp.size -= n
		src = src[n:]
		// woken on first bytes; partial transfers coalesce on the reader
		s.k.tskWakeup(w, Success)
	}

	if n := min(len(s.data)-s.count, len(src)); n > 0 {
		s.put(src[:n])
		src = src[n:]
	}
	return total - len(src)
}

// Take receives up to len(data) bytes without waiting, returning Timeout
// when the buffer is empty. Safe from interrupt context.
func (s *StreamBuf) Take(data []byte) (int, Status) {
	self := s.k.lock()
	defer s.k.unlock(self)
	if s.count == 0 {
		return 0, Timeout
	}
	n := min(len(data), s.count)
	s.get(data[:n])
	s.drainSenders()
	return n, Success
}

// Wait receives at least one byte into data, waiting indefinitely while the
// buffer is empty.
func (s *StreamBuf) Wait(data []byte) (int, Status) { return s.WaitFor(data, Infinite) }

// WaitFor receives up to len(data) bytes, waiting at most delay ticks while
// the buffer is empty. It returns as soon as any bytes are available.
func (s *StreamBuf) WaitFor(data []byte, delay Cnt) (int, Status) {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	return s.wait(self, data, delay, false)
}

// WaitUntil is WaitFor against an absolute counter value.
func (s *StreamBuf) WaitUntil(data []byte, abs Cnt) (int, Status) {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	return s.wait(self, data, abs, true)
}

func (s *StreamBuf) wait(self *Task, data []byte, t Cnt, until bool) (int, Status) {
	if s.count > 0 {
		n := min(len(data), s.count)
		s.get(data[:n])
		s.drainSenders()
		return n, Success
	}
	if len(data) == 0 {
		return 0, Success
	}

	self.tmp.in = data
	self.tmp.size = len(data)
	var st Status
	if until {
		st = s.k.waitUntil(self, &s.object, t, nil)
	} else {
		st = s.k.waitFor(self, &s.object, t, nil)
	}
	return len(data) - self.tmp.size, st
}

// Give sends up to len(data) bytes without waiting, returning the count
// written and Overflow when the buffer could not take everything. Safe from
// interrupt context.
func (s *StreamBuf) Give(data []byte) (int, Status) {
	self := s.k.lock()
	defer s.k.unlock(self)
	n := s.putUpdate(data)
	if n < len(data) {
		return n, Overflow
	}
	return n, Success
}

// Send writes all of data, waiting indefinitely for space.
func (s *StreamBuf) Send(data []byte) (int, Status) { return s.SendFor(data, Infinite) }

// SendFor writes all of data, waiting at most delay ticks for space; the
// transfer coalesces across wakes as receivers free room. On Timeout or
// Stopped the returned count is what made it through.
func (s *StreamBuf) SendFor(data []byte, delay Cnt) (int, Status) {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	return s.send(self, data, delay, false)
}

// SendUntil is SendFor against an absolute counter value.
func (s *StreamBuf) SendUntil(data []byte, abs Cnt) (int, Status) {
	self := s.k.lockTask()
	defer s.k.unlock(self)
	return s.send(self, data, abs, true)
}

func (s *StreamBuf) send(self *Task, data []byte, t Cnt, until bool) (int, Status) {
	n := s.putUpdate(data)
	if n == len(data) {
		return n, Success
	}

	self.tmp.out = data[n:]
	self.tmp.size = len(data) - n
	var st Status
	if until {
		st = s.k.waitUntil(self, &s.object, t, nil)
	} else {
		st = s.k.waitFor(self, &s.object, t, nil)
	}
	return len(data) - self.tmp.size, st
}

// Push writes all of data, discarding the oldest buffered bytes to make
// room. It refuses — returning Timeout — while tasks are parked on the
// buffer, and Failure when data exceeds the ring outright. Safe from
// interrupt context.
func (s *StreamBuf) Push(data []byte) Status {
	self := s.k.lock()
	defer s.k.unlock(self)
	if len(data) > len(s.data) {
		return Failure
	}
	if s.object.queue != nil {
		return Timeout
	}
	if over := len(data) - (len(s.data) - s.count); over > 0 {
		s.skip(over)
	}
	s.put(data)
	return Success
}

// Count returns the number of buffered bytes.
func (s *StreamBuf) Count() int {
	self := s.k.lock()
	defer s.k.unlock(self)
	return s.count
}

// Space returns the number of free bytes.
func (s *StreamBuf) Space() int {
	self := s.k.lock()
	defer s.k.unlock(self)
	return len(s.data) - s.count
}

// Limit returns the ring capacity.
func (s *StreamBuf) Limit() int {
	self := s.k.lock()
	defer s.k.unlock(self)
	return len(s.data)
}

// Kill resets the buffer, discarding buffered bytes and waking every waiter
// with Stopped.
func (s *StreamBuf) Kill() {
	self := s.k.lock()
	defer s.k.unlock(self)
	s.count, s.head, s.tail = 0, 0, 0
	s.k.allWakeup(&s.object, Stopped)
}
