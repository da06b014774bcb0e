package loop

import (
	"sync"
	"time"
)

// Loop is the single-threaded cooperative event loop described by the
// runtime: it owns an ordered event queue, a set of loop-runner hooks, and a
// fixed-size task pool for off-loop work. Run must be called from exactly
// one goroutine; PostEvent, PostTask, AddLoopRunner, RemoveLoopRunner,
// NotifyChanged and Terminate are safe from any goroutine.
type Loop struct {
	opts  *loopOptions
	state *fastState

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Event
	runners    runnerList
	terminated bool

	pool *taskPool
}

// New constructs a Loop. The task pool is started immediately; Run must be
// called (typically on its own goroutine) to begin ticking.
func New(opts ...Option) *Loop {
	cfg := resolveOptions(opts)
	l := &Loop{
		opts:  cfg,
		state: newFastState(),
		pool:  newTaskPool(cfg.taskPoolSize),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	return l.state.Load()
}

// PostEvent enqueues e at the tail of the event queue and wakes the loop if
// it is sleeping. Safe from any goroutine.
func (l *Loop) PostEvent(e Event) {
	l.mu.Lock()
	l.queue = append(l.queue, e)
	l.cond.Broadcast()
	l.mu.Unlock()
}

// PostTask hands t off to the task pool. Safe from any goroutine.
func (l *Loop) PostTask(t Task) {
	l.pool.submit(t)
}

// AddLoopRunner registers r to be invoked once per tick, in ascending
// priority order (lower priority value runs first); ties are broken by
// registration order. Safe from any goroutine, but runners themselves are
// always invoked from the Run goroutine.
func (l *Loop) AddLoopRunner(r LoopRunner, priority int) RunnerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runners.add(r, priority)
}

// RemoveLoopRunner unregisters a previously added LoopRunner.
func (l *Loop) RemoveLoopRunner(handle RunnerHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runners.remove(handle)
}

// NotifyChanged unblocks a sleeping loop immediately, without posting an
// event. Useful for loop-runners whose readiness changed out of band.
func (l *Loop) NotifyChanged() {
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Terminate requests that the loop stop. It is cooperative: it takes effect
// at the next tick boundary. Safe from any goroutine.
func (l *Loop) Terminate() {
	l.mu.Lock()
	l.terminated = true
	l.cond.Broadcast()
	l.mu.Unlock()
	l.pool.close()
}

func (l *Loop) terminateRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminated
}

// Run blocks the calling goroutine, ticking until Terminate is called.
func (l *Loop) Run() error {
	if !l.state.TryTransition(StateAwake, StateRunning) {
		return &InvariantError{Message: "loop already running or already terminated"}
	}

	for {
		now := time.Now()
		deadline := now.Add(l.opts.idleBudget)

		for _, re := range l.runners.snapshot() {
			if next, ok := re.runner.RunTick(now); ok && next.Before(deadline) {
				deadline = next
			}
		}

		if err := l.drainEvents(); err != nil {
			l.state.Store(StateTerminated)
			return err
		}

		if l.terminateRequested() {
			l.clearQueueOnTerminate()
			l.state.Store(StateTerminated)
			return nil
		}

		l.sleepUntil(deadline)

		if l.terminateRequested() {
			l.clearQueueOnTerminate()
			l.state.Store(StateTerminated)
			return nil
		}
	}
}

// drainEvents pops and applies events until the queue is empty.
func (l *Loop) drainEvents() error {
	for {
		ev, ok := l.popEvent()
		if !ok {
			return nil
		}
		if err := l.applyAndRelease(ev); err != nil {
			return err
		}
	}
}

func (l *Loop) popEvent() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	ev := l.queue[0]
	l.queue = l.queue[1:]
	return ev, true
}

// applyAndRelease runs Apply then Release, offering either error to the
// configured ProcessException hook. Release runs after Apply even if Apply
// failed, as long as the hook handled Apply's error; when the hook does not
// handle it, applyAndRelease returns without calling Release.
func (l *Loop) applyAndRelease(ev Event) error {
	if err := safeApply(ev); err != nil {
		decision := l.opts.processException(err)
		if !decision.Handled {
			if decision.Err == nil {
				return err
			}
			return decision.Err
		}
	}
	if err := safeRelease(ev); err != nil {
		decision := l.opts.processException(err)
		if !decision.Handled {
			if decision.Err == nil {
				return err
			}
			return decision.Err
		}
	}
	return nil
}

func safeApply(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HostError{Message: "panic during event apply", Cause: panicToError(r)}
		}
	}()
	return ev.Apply()
}

func safeRelease(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HostError{Message: "panic during event release", Cause: panicToError(r)}
		}
	}()
	return ev.Release()
}

// clearQueueOnTerminate drops and releases every remaining event without
// applying it, per the "terminate drains and exits" contract. Release
// errors are logged, not propagated - Run is already on its way out.
func (l *Loop) clearQueueOnTerminate() {
	l.mu.Lock()
	remaining := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, ev := range remaining {
		if err := safeRelease(ev); err != nil {
			logWarn(l.opts.logger, "loop", "error releasing event during shutdown", err)
		}
	}
}

// sleepUntil blocks until deadline, or until an event/wake/terminate
// occurs, whichever is first. It is the Go rendering of the original's
// condition_variable::wait_until.
func (l *Loop) sleepUntil(deadline time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated || len(l.queue) > 0 {
		return
	}

	l.state.Store(StateSleeping)
	defer l.state.Store(StateRunning)

	wait := time.Until(deadline)
	if wait <= 0 {
		return
	}

	timer := time.AfterFunc(wait, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer timer.Stop()

	// Every Broadcast on cond is a wake reason (an event was posted,
	// NotifyChanged, Terminate, or the deadline timer), so one Wait suffices.
	l.cond.Wait()
}
