package webruntime

import (
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
)

// TimerBinding installs setTimeout/setInterval/clearTimeout/clearInterval
// on a goja runtime's global object, backed by a loop.Timers. Script
// callbacks are rooted in a Registry for the lifetime of their timer entry
// and released as soon as the entry will never fire again (one-shot
// completion, or explicit clear), so a free-list-backed slot is always
// available for reuse rather than growing without bound.
//
// TimerBinding is not safe for concurrent use - like the Registry it wraps,
// it is only ever touched on the owning Loop's goroutine, since every
// script call (setTimeout, clearTimeout, ...) and every timer callback runs
// as part of an Event applied on that goroutine.
type TimerBinding struct {
	runtime  *goja.Runtime
	timers   *loop.Timers
	registry *Registry
	refs     map[uint64]Ref
}

// InstallTimers constructs a TimerBinding for l and rt, rooting callbacks
// through reg, and installs the four script-visible functions on rt's
// global object.
func InstallTimers(rt *goja.Runtime, l *loop.Loop, reg *Registry) *TimerBinding {
	tb := &TimerBinding{
		runtime:  rt,
		timers:   loop.NewTimers(l),
		registry: reg,
		refs:     make(map[uint64]Ref),
	}
	must(rt.Set("setTimeout", tb.setTimeout))
	must(rt.Set("setInterval", tb.setInterval))
	must(rt.Set("clearTimeout", tb.clearTimeout))
	must(rt.Set("clearInterval", tb.clearInterval))
	return tb
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (tb *TimerBinding) assertCallback(call goja.FunctionCall, who string) goja.Value {
	if _, ok := goja.AssertFunction(call.Argument(0)); !ok {
		panic(tb.runtime.NewTypeError("%s: first argument must be a function", who))
	}
	return call.Argument(0)
}

func delayFromArg(call goja.FunctionCall) time.Duration {
	ms := call.Argument(1).ToInteger()
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// setTimeout is the script-visible setTimeout(fn, delayMs) -> id.
//
// Open question (extra setTimeout arguments): trailing arguments beyond fn
// and delayMs are accepted (for call-shape compatibility) but not forwarded
// to the callback, matching the original's literal script source.
func (tb *TimerBinding) setTimeout(call goja.FunctionCall) goja.Value {
	fnVal := tb.assertCallback(call, "setTimeout")
	delay := delayFromArg(call)
	ref := tb.registry.Create(fnVal)

	var id uint64
	id = tb.timers.SetTimeout(tb.callbackFor(ref, true, &id), delay)
	tb.refs[id] = ref
	return tb.runtime.ToValue(id)
}

// setInterval is the script-visible setInterval(fn, periodMs) -> id.
func (tb *TimerBinding) setInterval(call goja.FunctionCall) goja.Value {
	fnVal := tb.assertCallback(call, "setInterval")
	period := delayFromArg(call)
	ref := tb.registry.Create(fnVal)

	var id uint64
	id = tb.timers.SetInterval(tb.callbackFor(ref, false, &id), period)
	tb.refs[id] = ref
	return tb.runtime.ToValue(id)
}

// callbackFor builds the generic loop.Timers callback for a rooted script
// function. idPtr is filled in by the caller immediately after scheduling,
// before the callback can possibly run, since timers never fire inside
// their own registration call.
func (tb *TimerBinding) callbackFor(ref Ref, oneShot bool, idPtr *uint64) func() error {
	return func() error {
		fnVal, ok := tb.registry.Push(ref)
		if !ok {
			// Already released via a clear() call; nothing to invoke.
			return nil
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return nil
		}

		_, callErr := fn(goja.Undefined())

		if oneShot {
			tb.registry.Release(ref)
			delete(tb.refs, *idPtr)
		}

		if callErr != nil {
			if ex, ok := callErr.(*goja.Exception); ok {
				return &loop.ScriptError{Message: ex.Error(), Stack: ex.String()}
			}
			return &loop.HostError{Message: "timer callback invocation failed", Cause: callErr}
		}
		return nil
	}
}

func (tb *TimerBinding) clearTimeout(call goja.FunctionCall) goja.Value {
	return tb.clear(call)
}

func (tb *TimerBinding) clearInterval(call goja.FunctionCall) goja.Value {
	return tb.clear(call)
}

// clear implements both clearTimeout and clearInterval: they share an ID
// counter and cancellation semantics in this runtime, same as the original.
func (tb *TimerBinding) clear(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	ok := tb.timers.ClearTimeout(id)
	if ok {
		if ref, exists := tb.refs[id]; exists {
			tb.registry.Release(ref)
			delete(tb.refs, id)
		}
	}
	return tb.runtime.ToValue(ok)
}
