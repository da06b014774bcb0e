package webruntime

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
)

// WorkerLoader loads the script named by a Worker's url argument into the
// child runtime, before the child loop starts running. The original ships
// no real implementation of this (its default throws "unimplemented");
// embedders supply one appropriate to how they resolve worker scripts (a
// filesystem loader, a bundler-aware loader, an in-memory registry, ...):
// how a url resolves to source is entirely a host decision, and this
// interface is that decision point.
type WorkerLoader interface {
	Load(rt *goja.Runtime, l *loop.Loop, url string) error
}

// WorkerLoaderFunc adapts a plain function to WorkerLoader.
type WorkerLoaderFunc func(rt *goja.Runtime, l *loop.Loop, url string) error

func (f WorkerLoaderFunc) Load(rt *goja.Runtime, l *loop.Loop, url string) error {
	return f(rt, l, url)
}

// unimplementedLoader mirrors the original's default WorkerWorker::loadUrl,
// which refuses to load anything until a host overrides it.
type unimplementedLoader struct{}

func (unimplementedLoader) Load(rt *goja.Runtime, l *loop.Loop, url string) error {
	return &loop.InvariantError{Message: fmt.Sprintf("worker url loading not implemented: %s", url)}
}

// ChildSetupFunc is invoked once per Worker, after the child runtime's
// DedicatedWorkerGlobalScope-equivalent exists but before the loader runs
// or the child loop's goroutine starts. Embedders use it to install
// whichever host bindings (console, timers, ...) the child environment
// should have - the same components wired for the parent, chosen per
// embedder rather than assumed by this package.
type ChildSetupFunc func(rt *goja.Runtime, l *loop.Loop, global *goja.Object)

// WorkerModule installs the Worker/AbstractWorker constructors on a parent
// goja runtime. Each Worker instance owns an independent child *goja.Runtime
// and *loop.Loop running on a dedicated goroutine; there is no shared
// memory between parent and child beyond the message bytes exchanged via
// postMessage, which round-trip through serialize.go.
type WorkerModule struct {
	runtime     *goja.Runtime
	parentLoop  *loop.Loop
	eventTarget *EventTargetModule
	loader      WorkerLoader
	setup       ChildSetupFunc

	abstractWorkerProto *goja.Object
	workerProto         *goja.Object
	workerCtor          goja.Value

	handles map[*goja.Object]*workerHandle
}

// WorkerOption configures a WorkerModule at installation time.
type WorkerOption func(*WorkerModule)

// WithWorkerLoader overrides the default unimplemented-loader.
func WithWorkerLoader(loader WorkerLoader) WorkerOption {
	return func(m *WorkerModule) { m.loader = loader }
}

// WithChildSetup registers a hook run against every new child runtime/loop.
func WithChildSetup(setup ChildSetupFunc) WorkerOption {
	return func(m *WorkerModule) { m.setup = setup }
}

// InstallWorker installs Worker/AbstractWorker on rt, with Worker instances
// gaining the EventTarget capability set via prototype chaining (requires
// EventTarget to already be installed on rt; see DESIGN.md Component F).
func InstallWorker(rt *goja.Runtime, parentLoop *loop.Loop, et *EventTargetModule, opts ...WorkerOption) *WorkerModule {
	m := &WorkerModule{
		runtime:     rt,
		parentLoop:  parentLoop,
		eventTarget: et,
		loader:      unimplementedLoader{},
		handles:     make(map[*goja.Object]*workerHandle),
	}
	for _, opt := range opts {
		opt(m)
	}

	abstractWorkerCtor := rt.ToValue(noOpConstructor)
	must(rt.Set("AbstractWorker", abstractWorkerCtor))
	abstractCtorObj := abstractWorkerCtor.ToObject(rt)
	m.abstractWorkerProto = rt.NewObject()
	must(m.abstractWorkerProto.SetPrototype(et.TargetPrototype()))
	must(abstractCtorObj.Set("prototype", m.abstractWorkerProto))
	definePropertySugar(rt, m.abstractWorkerProto, "error")

	m.workerCtor = rt.ToValue(m.workerConstructor)
	must(rt.Set("Worker", m.workerCtor))
	ctorObj := m.workerCtor.ToObject(rt)
	m.workerProto = rt.NewObject()
	must(m.workerProto.SetPrototype(m.abstractWorkerProto))
	must(ctorObj.Set("prototype", m.workerProto))

	m.workerProto.Set("postMessage", rt.ToValue(m.postMessage))
	m.workerProto.Set("terminate", rt.ToValue(m.terminate))
	definePropertySugar(rt, m.workerProto, "message")

	return m
}

// noOpConstructor backs constructors whose only purpose is to exist as a
// named, script-visible prototype anchor (AbstractWorker, WorkerGlobalScope,
// DedicatedWorkerGlobalScope): the capability those prototypes grant comes
// entirely from prototype chaining, set up once at install time, not from
// per-instance construction work.
func noOpConstructor(call goja.ConstructorCall) *goja.Object { return nil }

// definePropertySugar installs the "onX" property pattern used throughout
// the original's worker globals: reading it returns the last value set;
// setting it removes any previously-installed listener for name and adds
// the new value as a listener, so `target.onmessage = fn` behaves as
// `target.addEventListener("message", fn)` with at most one such listener
// alive at a time.
func definePropertySugar(rt *goja.Runtime, proto *goja.Object, name string) {
	hiddenKey := "_on" + name
	publicKey := "on" + name

	getter := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		this := call.This.ToObject(rt)
		return this.Get(hiddenKey)
	})
	setter := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		this := call.This.ToObject(rt)
		if old := this.Get(hiddenKey); !isNullish(old) {
			if removeFn, ok := goja.AssertFunction(this.Get("removeEventListener")); ok {
				must2(removeFn(this, rt.ToValue(name), old))
			}
		}
		val := call.Argument(0)
		this.Set(hiddenKey, val)
		if addFn, ok := goja.AssertFunction(this.Get("addEventListener")); ok {
			must2(addFn(this, rt.ToValue(name), val))
		}
		return goja.Undefined()
	})

	descriptor := rt.NewObject()
	descriptor.Set("get", getter)
	descriptor.Set("set", setter)
	descriptor.Set("configurable", true)

	objectCtor := rt.GlobalObject().Get("Object").ToObject(rt)
	defineProperty, _ := goja.AssertFunction(objectCtor.Get("defineProperty"))
	must2(defineProperty(goja.Undefined(), proto, rt.ToValue(publicKey), descriptor))
}

func must2(_ goja.Value, err error) {
	if err != nil {
		panic(err)
	}
}

// installWorkerGlobalScope builds the WorkerGlobalScope and
// DedicatedWorkerGlobalScope prototype anchors on a child runtime and
// returns DedicatedWorkerGlobalScope.prototype, for the worker constructor
// to set as the child global object's prototype.
func installWorkerGlobalScope(rt *goja.Runtime, et *EventTargetModule) *goja.Object {
	workerGlobalCtor := rt.ToValue(noOpConstructor)
	must(rt.Set("WorkerGlobalScope", workerGlobalCtor))
	wgCtorObj := workerGlobalCtor.ToObject(rt)
	workerGlobalProto := rt.NewObject()
	must(workerGlobalProto.SetPrototype(et.TargetPrototype()))
	must(wgCtorObj.Set("prototype", workerGlobalProto))

	workerGlobalProto.Set("close", rt.ToValue(func(call goja.FunctionCall) goja.Value { return goja.Undefined() }))
	workerGlobalProto.Set("importScripts", rt.ToValue(func(call goja.FunctionCall) goja.Value { return goja.Undefined() }))
	for _, name := range []string{"error", "offline", "online", "languagechange"} {
		definePropertySugar(rt, workerGlobalProto, name)
	}

	dedicatedCtor := rt.ToValue(noOpConstructor)
	must(rt.Set("DedicatedWorkerGlobalScope", dedicatedCtor))
	dedCtorObj := dedicatedCtor.ToObject(rt)
	dedicatedProto := rt.NewObject()
	must(dedicatedProto.SetPrototype(workerGlobalProto))
	must(dedCtorObj.Set("prototype", dedicatedProto))
	definePropertySugar(rt, dedicatedProto, "message")

	return dedicatedProto
}

type workerHandle struct {
	mu               sync.Mutex
	parentObj        *goja.Object
	childRt          *goja.Runtime
	childLoop        *loop.Loop
	childGlobal      *goja.Object
	childEventTarget *EventTargetModule
	done             chan struct{}
	terminated       bool
}

func (m *WorkerModule) workerConstructor(call goja.ConstructorCall) *goja.Object {
	url := call.Argument(0).String()
	parentObj := call.This

	childRt := goja.New()
	childEventTarget := InstallEventTarget(childRt)

	handle := &workerHandle{
		parentObj:        parentObj,
		childRt:          childRt,
		childEventTarget: childEventTarget,
		done:             make(chan struct{}),
	}

	childLoop := loop.New(loop.WithProcessException(func(err error) loop.ExceptionDecision {
		message := err.Error()
		m.parentLoop.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
			return m.eventTarget.DispatchEventAt(parentObj, m.eventTarget.NewErrorEvent(message))
		}})
		// The original's WorkerEventLoop always returns true here: a
		// worker's uncaught errors are reported to the parent, but never
		// unwind the worker's own loop.
		return loop.Handled()
	}))
	handle.childLoop = childLoop

	dedicatedProto := installWorkerGlobalScope(childRt, childEventTarget)
	childGlobal := childRt.GlobalObject()
	must(childGlobal.SetPrototype(dedicatedProto))
	childGlobal.Set("self", childGlobal)
	childGlobal.Set("postMessage", childRt.ToValue(func(call goja.FunctionCall) goja.Value {
		data := call.Argument(0)
		encoded, err := Encode(data)
		if err != nil {
			panic(childRt.NewGoError(err))
		}
		m.parentLoop.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
			decoded, err := Decode(m.runtime, encoded)
			if err != nil {
				return err
			}
			return m.eventTarget.DispatchEventAt(parentObj, m.eventTarget.NewDataEvent("message", decoded))
		}})
		return goja.Undefined()
	}))
	handle.childGlobal = childGlobal

	if m.setup != nil {
		m.setup(childRt, childLoop, childGlobal)
	}

	if err := m.loader.Load(childRt, childLoop, url); err != nil {
		panic(m.runtime.NewGoError(err))
	}

	m.handles[parentObj] = handle
	go func() {
		defer close(handle.done)
		_ = childLoop.Run()
	}()

	return nil
}

func (m *WorkerModule) postMessage(call goja.FunctionCall) goja.Value {
	parentObj := call.This.ToObject(m.runtime)
	handle, ok := m.handles[parentObj]
	if !ok {
		panic(m.runtime.NewTypeError("postMessage: not a Worker instance"))
	}

	data := call.Argument(0)
	encoded, err := Encode(data)
	if err != nil {
		panic(m.runtime.NewGoError(err))
	}

	handle.childLoop.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
		decoded, err := Decode(handle.childRt, encoded)
		if err != nil {
			return err
		}
		return handle.childEventTarget.DispatchEventAt(handle.childGlobal, handle.childEventTarget.NewDataEvent("message", decoded))
	}})
	return goja.Undefined()
}

func (m *WorkerModule) terminate(call goja.FunctionCall) goja.Value {
	parentObj := call.This.ToObject(m.runtime)
	handle, ok := m.handles[parentObj]
	if !ok {
		return goja.Undefined()
	}

	handle.mu.Lock()
	if handle.terminated {
		handle.mu.Unlock()
		return goja.Undefined()
	}
	handle.terminated = true
	handle.mu.Unlock()

	handle.childLoop.Terminate()
	<-handle.done
	delete(m.handles, parentObj)
	return goja.Undefined()
}
