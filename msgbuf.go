package rtkernel

import "encoding/binary"

// msgPrefix is the length prefix framing each message in the byte ring.
const msgPrefix = 4

// MsgBuf is a message buffer: variable-length messages framed as a length
// prefix plus payload in a byte ring. Receive returns exactly one complete
// message; send blocks until there is room for prefix and payload. A send
// meeting a parked receiver with room for the message bypasses the ring and
// copies straight between scratch buffers.
type MsgBuf struct {
	object
	k          *Kernel
	data       []byte
	count      int // bytes used, prefixes included
	head, tail int
}

// NewMsgBuf creates a message buffer over limit bytes of ring storage.
// Panics unless limit exceeds the message prefix size.
func NewMsgBuf(k *Kernel, limit int) *MsgBuf {
	m := &MsgBuf{}
	m.Init(k, limit)
	return m
}

// Init initialises a statically allocated message buffer; see [NewMsgBuf].
func (m *MsgBuf) Init(k *Kernel, limit int) {
	if k == nil {
		panic(`rtkernel: nil kernel`)
	}
	if limit <= msgPrefix {
		panic(`rtkernel: message buffer limit too small`)
	}
	self := k.lock()
	defer k.unlock(self)
	*m = MsgBuf{k: k, data: make([]byte, limit)}
}

func (m *MsgBuf) get(dst []byte) {
	i := m.head
	m.count -= len(dst)
	for n := range dst {
		dst[n] = m.data[i]
		i++
		if i == len(m.data) {
			i = 0
		}
	}
	m.head = i
}

func (m *MsgBuf) put(src []byte) {
	i := m.tail
	m.count += len(src)
	for n := range src {
		m.data[i] = src[n]
		i++
		if i == len(m.data) {
			i = 0
		}
	}
	m.tail = i
}

func (m *MsgBuf) skip(n int) {
	m.count -= n
	m.head += n
	if m.head >= len(m.data) {
		m.head -= len(m.data)
	}
}

func (m *MsgBuf) getSize() int {
	var b [msgPrefix]byte
	m.get(b[:])
	return int(binary.LittleEndian.Uint32(b[:]))
}

func (m *MsgBuf) putSize(n int) {
	var b [msgPrefix]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	m.put(b[:])
}

// first returns the length of the first queued message, zero when empty.
func (m *MsgBuf) first() int {
	if m.count == 0 {
		return 0
	}
	var b [msgPrefix]byte
	i := m.head
	for n := range b {
		b[n] = m.data[i]
		i++
		if i == len(m.data) {
			i = 0
		}
	}
	return int(binary.LittleEndian.Uint32(b[:]))
}

// space returns the payload bytes a sender could frame right now. It is zero
// while parked senders hold the order.
func (m *MsgBuf) space() int {
	if (m.count == 0 || m.object.queue == nil) && len(m.data)-m.count > msgPrefix {
		return len(m.data) - m.count - msgPrefix
	}
	return 0
}

// limit returns the largest message the ring can ever hold.
func (m *MsgBuf) limit() int {
	return len(m.data) - msgPrefix
}

// getUpdate consumes the first message into dst, then drains parked senders
// into the freed space.
func (m *MsgBuf) getUpdate(dst []byte) int {
	size := m.getSize()
	m.get(dst[:size])

	for {
		w := m.object.queue
		if w == nil || w.tmp.size > m.space() {
			break
		}
		m.putSize(w.tmp.size)
		m.put(w.tmp.out[:w.tmp.size])
		w.tmp.size = 0
		m.k.tskWakeup(w, Success)
	}
	return size
}

// putUpdate delivers src: a parked receiver with room gets it copied
// straight into its scratch buffer, never touching the ring; one without
// room is woken empty with Timeout. With no receivers the message is framed
// into the ring.
func (m *MsgBuf) putUpdate(src []byte) {
	for m.count == 0 {
		w := m.object.queue
		if w == nil {
			break
		}
		if w.tmp.size >= len(src) {
			copy(w.tmp.in, src)
			w.tmp.size -= len(src)
			m.k.tskWakeup(w, Success)
			return
		}
		m.k.tskWakeup(w, Timeout)
	}
	m.putSize(len(src))
	m.put(src)
}

// Take receives one message without waiting. Returns Timeout when the buffer
// is empty, Failure when data is too small for the first message.
func (m *MsgBuf) Take(data []byte) (int, Status) {
	self := m.k.lock()
	defer m.k.unlock(self)
	if m.count == 0 {
		return 0, Timeout
	}
	if len(data) < m.first() {
		return 0, Failure
	}
	return m.getUpdate(data), Success
}

// Wait receives one message into data, waiting indefinitely while the buffer
// is empty.
func (m *MsgBuf) Wait(data []byte) (int, Status) { return m.WaitFor(data, Infinite) }

// WaitFor receives one complete message into data, waiting at most delay
// ticks while the buffer is empty. A buffer too small for the first queued
// message fails immediately with Failure.
func (m *MsgBuf) WaitFor(data []byte, delay Cnt) (int, Status) {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.wait(self, data, delay, false)
}

// WaitUntil is WaitFor against an absolute counter value.
func (m *MsgBuf) WaitUntil(data []byte, abs Cnt) (int, Status) {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.wait(self, data, abs, true)
}

func (m *MsgBuf) wait(self *Task, data []byte, t Cnt, until bool) (int, Status) {
	if m.count > 0 {
		if len(data) < m.first() {
			return 0, Failure
		}
		return m.getUpdate(data), Success
	}
	if len(data) == 0 {
		return 0, Success
	}

	self.tmp.in = data
	self.tmp.size = len(data)
	var st Status
	if until {
		st = m.k.waitUntil(self, &m.object, t, nil)
	} else {
		st = m.k.waitFor(self, &m.object, t, nil)
	}
	return len(data) - self.tmp.size, st
}

// Give sends one message without waiting. Returns Overflow when the message
// does not fit right now, Failure when it can never fit.
func (m *MsgBuf) Give(data []byte) Status {
	self := m.k.lock()
	defer m.k.unlock(self)
	if len(data) == 0 {
		return Success
	}
	if len(data) > m.limit() {
		return Failure
	}
	if len(data) > m.space() {
		return Overflow
	}
	m.putUpdate(data)
	return Success
}

// Send sends one message, waiting indefinitely while there is no room.
func (m *MsgBuf) Send(data []byte) (int, Status) { return m.SendFor(data, Infinite) }

// SendFor sends one complete message, waiting at most delay ticks while
// there is no room for prefix and payload. A message larger than the ring
// fails immediately with Failure.
func (m *MsgBuf) SendFor(data []byte, delay Cnt) (int, Status) {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.send(self, data, delay, false)
}

// SendUntil is SendFor against an absolute counter value.
func (m *MsgBuf) SendUntil(data []byte, abs Cnt) (int, Status) {
	self := m.k.lockTask()
	defer m.k.unlock(self)
	return m.send(self, data, abs, true)
}

func (m *MsgBuf) send(self *Task, data []byte, t Cnt, until bool) (int, Status) {
	if len(data) == 0 {
		return 0, Success
	}
	if len(data) > m.limit() {
		return 0, Failure
	}
	if len(data) <= m.space() {
		m.putUpdate(data)
		return len(data), Success
	}

	self.tmp.out = data
	self.tmp.size = len(data)
	var st Status
	if until {
		st = m.k.waitUntil(self, &m.object, t, nil)
	} else {
		st = m.k.waitFor(self, &m.object, t, nil)
	}
	return len(data) - self.tmp.size, st
}

// Push sends one message, discarding queued messages oldest-first to make
// room. It refuses — returning Timeout — while tasks are parked on a
// non-empty buffer, and Failure for a message that can never fit. On an
// empty buffer with parked receivers the message goes to them as in Give.
func (m *MsgBuf) Push(data []byte) Status {
	self := m.k.lock()
	defer m.k.unlock(self)
	if len(data) == 0 {
		return Success
	}
	if len(data) > m.limit() {
		return Failure
	}
	if m.count > 0 && m.object.queue != nil {
		return Timeout
	}
	for len(data) > m.space() {
		m.skip(m.getSize())
	}
	m.putUpdate(data)
	return Success
}

// Count returns the length of the first queued message, zero when empty.
func (m *MsgBuf) Count() int {
	self := m.k.lock()
	defer m.k.unlock(self)
	return m.first()
}

// Space returns the largest message that could be sent without waiting.
func (m *MsgBuf) Space() int {
	self := m.k.lock()
	defer m.k.unlock(self)
	return m.space()
}

// Limit returns the largest message the buffer can ever hold.
func (m *MsgBuf) Limit() int {
	self := m.k.lock()
	defer m.k.unlock(self)
	return m.limit()
}

// Kill resets the buffer, discarding queued messages and waking every waiter
// with Stopped.
func (m *MsgBuf) Kill() {
	self := m.k.lock()
	defer m.k.unlock(self)
	m.count, m.head, m.tail = 0, 0, 0
	m.k.allWakeup(&m.object, Stopped)
}
