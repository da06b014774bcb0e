package loop

// Event is an opaque unit of deferred work. Both Apply and Release are
// invoked on the owning Loop's goroutine only. Apply performs the work;
// Release frees any stable references the event holds, and runs after
// Apply even if Apply returned an error, provided the Loop's exception hook
// handled that error; if the hook does not, Run returns without calling
// Release.
type Event interface {
	Apply() error
	Release() error
}

// FuncEvent adapts a pair of plain functions to the Event interface. Either
// field may be nil, in which case that step is a no-op.
type FuncEvent struct {
	ApplyFunc   func() error
	ReleaseFunc func() error
}

func (e FuncEvent) Apply() error {
	if e.ApplyFunc == nil {
		return nil
	}
	return e.ApplyFunc()
}

func (e FuncEvent) Release() error {
	if e.ReleaseFunc == nil {
		return nil
	}
	return e.ReleaseFunc()
}
