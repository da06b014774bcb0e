package loop

import (
	"container/heap"
	"sync"
	"time"
)

// TimerPriority is the loop-runner priority the Timer Subsystem registers
// itself at: "very high" (lower value runs earlier).
const TimerPriority = 5

// maxExpiriesPerTick bounds how many expired/removed entries a single tick
// promotes to events, so one overdue timer storm cannot starve the loop.
const maxExpiriesPerTick = 10

type timerEntry struct {
	deadline time.Time
	id       uint64
	oneShot  bool
	period   time.Duration
	removed  bool
	callback func() error
	index    int // heap index, maintained by container/heap
}

// timerHeap orders entries by (deadline, id), ascending.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Timers implements the deadline-ordered setTimeout/setInterval subsystem
// described by the runtime, operating on plain callbacks. It registers
// itself as a LoopRunner at TimerPriority when constructed via NewTimers.
type Timers struct {
	mu      sync.Mutex
	loop    *Loop
	entries timerHeap
	byID    map[uint64]*timerEntry
	nextID  uint64
	handle  RunnerHandle
	now     func() time.Time
}

// NewTimers constructs a Timers subsystem bound to loop and registers it as
// a loop-runner at TimerPriority.
func NewTimers(l *Loop) *Timers {
	t := &Timers{
		loop: l,
		byID: make(map[uint64]*timerEntry),
		now:  time.Now,
	}
	t.handle = l.AddLoopRunner(t, TimerPriority)
	return t
}

// SetTimeout schedules cb to run once, after at least delay. A delay of 0
// or less fires on the next tick. Returns a positive, never-reused-while-
// live ID. An error returned by cb propagates through the owning Loop's
// exception hook, the same as any other event application error.
func (t *Timers) SetTimeout(cb func() error, delay time.Duration) uint64 {
	return t.schedule(cb, delay, true, 0)
}

// SetInterval schedules cb to run repeatedly, every period, starting after
// the first period elapses.
func (t *Timers) SetInterval(cb func() error, period time.Duration) uint64 {
	return t.schedule(cb, period, false, period)
}

func (t *Timers) schedule(cb func() error, delay time.Duration, oneShot bool, period time.Duration) uint64 {
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	e := &timerEntry{
		deadline: t.now().Add(delay),
		id:       id,
		oneShot:  oneShot,
		period:   period,
		callback: cb,
	}
	heap.Push(&t.entries, e)
	t.byID[id] = e
	return id
}

// ClearTimeout cancels a one-shot timer. Returns false if id does not name
// a live entry (never existed or already cancelled).
func (t *Timers) ClearTimeout(id uint64) bool {
	return t.clear(id)
}

// ClearInterval cancels an interval timer. Identical semantics to
// ClearTimeout; both IDs are drawn from the same counter.
func (t *Timers) ClearInterval(id uint64) bool {
	return t.clear(id)
}

func (t *Timers) clear(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok || e.removed {
		return false
	}
	e.removed = true
	return true
}

// RunTick implements LoopRunner. It promotes at most maxExpiriesPerTick
// expired or removed entries into loop events and returns the deadline of
// the new head entry, if any.
func (t *Timers) RunTick(now time.Time) (time.Time, bool) {
	var toPost []*timerEntry

	t.mu.Lock()
	for i := 0; i < maxExpiriesPerTick && t.entries.Len() > 0; i++ {
		head := t.entries[0]
		if !head.removed && head.deadline.After(now) {
			break
		}
		heap.Pop(&t.entries)
		if head.removed {
			delete(t.byID, head.id)
			continue
		}
		toPost = append(toPost, head)
	}
	var next time.Time
	hasNext := t.entries.Len() > 0
	if hasNext {
		next = t.entries[0].deadline
	}
	t.mu.Unlock()

	for _, e := range toPost {
		entry := e
		t.loop.PostEvent(FuncEvent{ApplyFunc: func() error {
			return t.fire(entry)
		}})
	}

	return next, hasNext
}

// fire invokes the callback and, for intervals, re-arms the entry unless it
// was cancelled from within the callback.
func (t *Timers) fire(e *timerEntry) error {
	err := e.callback()

	t.mu.Lock()
	defer t.mu.Unlock()

	if e.oneShot {
		e.removed = true
		delete(t.byID, e.id)
		return err
	}
	if e.removed {
		delete(t.byID, e.id)
		return err
	}
	e.deadline = t.now().Add(e.period)
	heap.Push(&t.entries, e)
	return err
}
