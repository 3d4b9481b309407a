package rtkernel

// objID identifies which kernel queue an object header currently threads
// through, or that it threads through none.
type objID uint8

const (
	idStopped objID = iota // in no global list
	idReady                // in the ready queue
	idDelayed              // in the delayed queue, waiting task
	idIdle                 // the ready-queue sentinel
	idTimer                // in the delayed queue, timer
)

// object is the common header every kernel object begins with. Tasks and
// timers thread through the global circular lists via prev/next; every
// waitable object heads a singly-linked waiter queue via queue. The same
// queue field, on a *queued task's* header, links to the next waiter — the
// waiter chain alternates task headers, terminated by nil.
//
// start/delay position tasks and timers in the delayed queue and are unused
// on primitive headers. tsk/tmr are set on headers owned by a [Task] or
// [Timer] respectively, so the delayed-queue handler can recover the owner.
type object struct {
	id         objID
	prev, next *object
	queue      *Task
	tsk        *Task
	tmr        *Timer
	start      Cnt
	delay      Cnt
	mtx        *Mutex // set on mutex headers; drives priority propagation
}

// listInsert splices obj into a circular list immediately before nxt,
// stamping it with id.
func listInsert(obj *object, id objID, nxt *object) {
	prv := nxt.prev
	obj.id = id
	obj.prev = prv
	obj.next = nxt
	nxt.prev = obj
	prv.next = obj
}

// listRemove unlinks obj from its circular list and marks it stopped.
func listRemove(obj *object) {
	nxt := obj.next
	prv := obj.prev
	nxt.prev = prv
	prv.next = nxt
	obj.prev = nil
	obj.next = nil
	obj.id = idStopped
}
