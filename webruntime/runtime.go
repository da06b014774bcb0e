package webruntime

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
)

// RegisterEventTarget installs the Event-Target layer on rt: the Event,
// ErrorEvent and EventTarget constructors. Every other component in this
// package that needs to dispatch events (Timer Subsystem callbacks raising
// errors aside, which go through the loop's exception hook instead) depends
// on this having run first - in particular Worker, which mixes EventTarget's
// capability set into Worker instances, so the data-flow order is always
// Event-Target, then Console, then Timer, then Worker.
func RegisterEventTarget(rt *goja.Runtime) *EventTargetModule {
	return InstallEventTarget(rt)
}

// RegisterConsole installs console.log/debug/info/warn/error/clear on rt,
// dispatching to worker.
func RegisterConsole(rt *goja.Runtime, worker ConsoleWorker) {
	InstallConsole(rt, worker)
}

// RegisterSetTimeout installs the Timer Subsystem's script-visible surface
// (setTimeout/setInterval/clearTimeout/clearInterval) on rt, backed by a
// fresh loop.Timers bound to l and rooting callbacks through reg.
func RegisterSetTimeout(rt *goja.Runtime, l *loop.Loop, reg *Registry) *TimerBinding {
	return InstallTimers(rt, l, reg)
}

// RegisterWorker installs the Worker Subsystem on rt, bound to l as the
// parent loop and et as the already-installed Event-Target layer.
func RegisterWorker(rt *goja.Runtime, l *loop.Loop, et *EventTargetModule, opts ...WorkerOption) *WorkerModule {
	return InstallWorker(rt, l, et, opts...)
}

// Runtime is a fully wired instance of the async runtime layer: one goja
// Runtime, one Loop, and every component registered against them in the
// required data-flow order (Event-Target, Console, Timer, Worker).
// Embedders that want more control over wiring - a child runtime inside a
// custom WorkerLoader, say - can call the Register* functions directly
// instead of using Runtime.
type Runtime struct {
	Script      *goja.Runtime
	Loop        *loop.Loop
	Registry    *Registry
	EventTarget *EventTargetModule
	Timers      *TimerBinding
	Worker      *WorkerModule
}

// Config selects which optional components New wires in, beyond the
// mandatory Event-Target layer every other component depends on.
type Config struct {
	LoopOptions   []loop.Option
	ConsoleWorker ConsoleWorker // nil skips console registration
	WorkerOptions []WorkerOption
	SkipWorker    bool // true skips Worker registration entirely
}

// New constructs a goja Runtime and a Loop, and registers every component
// named in cfg against them, in the required order.
func New(cfg Config) *Runtime {
	rt := &Runtime{
		Script:   goja.New(),
		Loop:     loop.New(cfg.LoopOptions...),
		Registry: NewRegistry(),
	}

	rt.EventTarget = RegisterEventTarget(rt.Script)

	if cfg.ConsoleWorker != nil {
		RegisterConsole(rt.Script, cfg.ConsoleWorker)
	}

	rt.Timers = RegisterSetTimeout(rt.Script, rt.Loop, rt.Registry)

	if !cfg.SkipWorker {
		rt.Worker = RegisterWorker(rt.Script, rt.Loop, rt.EventTarget, cfg.WorkerOptions...)
	}

	return rt
}

// Run blocks the calling goroutine running the loop's tick-drain-sleep
// cycle, same as calling Runtime.Loop.Run() directly.
func (r *Runtime) Run() error {
	return r.Loop.Run()
}
