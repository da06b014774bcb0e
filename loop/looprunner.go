package loop

import (
	"sort"
	"time"
)

// LoopRunner is a hook invoked once per tick with the current tick time. It
// may post events on the loop and returns an optional deadline indicating
// the earliest instant it wishes to be driven again; ok is false if it has
// no opinion about the next wake time.
type LoopRunner interface {
	RunTick(now time.Time) (next time.Time, ok bool)
}

// RunnerHandle identifies a registered LoopRunner for later removal.
type RunnerHandle uint64

type runnerEntry struct {
	handle   RunnerHandle
	priority int
	seq      uint64
	runner   LoopRunner
}

// runnerList keeps LoopRunner registrations sorted by ascending priority
// (lower integer = higher priority), with insertion order breaking ties.
type runnerList struct {
	entries []runnerEntry
	nextSeq uint64
	nextID  uint64
}

func (l *runnerList) add(r LoopRunner, priority int) RunnerHandle {
	l.nextID++
	l.nextSeq++
	l.entries = append(l.entries, runnerEntry{
		handle:   RunnerHandle(l.nextID),
		priority: priority,
		seq:      l.nextSeq,
		runner:   r,
	})
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].priority < l.entries[j].priority
	})
	return RunnerHandle(l.nextID)
}

func (l *runnerList) remove(handle RunnerHandle) bool {
	for i, e := range l.entries {
		if e.handle == handle {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the current ordering for iteration without holding the
// owning Loop's lock while runners execute.
func (l *runnerList) snapshot() []runnerEntry {
	out := make([]runnerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
