package webruntime

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
)

// listenerEntry pairs a registered listener with the object identity used
// to find it again for removeEventListener, since goja function values
// cannot be compared with Go's == across arbitrary call sites - their
// backing *goja.Object pointer can.
type listenerEntry struct {
	id  uint64
	obj *goja.Object
	fn  goja.Callable
}

type eventTargetState struct {
	listeners map[string][]listenerEntry
	nextID    uint64
}

// EventTargetModule installs the Event, ErrorEvent and EventTarget
// constructors (spec component E) on a goja runtime, and exposes the
// shared prototypes so the Worker subsystem can grant the EventTarget
// capability set to Worker instances via prototype chaining.
type EventTargetModule struct {
	runtime *goja.Runtime

	eventCtor  goja.Value
	eventProto *goja.Object

	errorEventCtor  goja.Value
	errorEventProto *goja.Object

	targetCtor  goja.Value
	targetProto *goja.Object
}

// eventStateKey is the hidden property name backing each target's listener
// registry (see stateFor). Stored on the object itself, rather than in a
// module-wide side table, so it is collected along with the object instead
// of rooting every EventTarget for the runtime's lifetime.
const eventStateKey = "_eventTargetState"

// InstallEventTarget constructs an EventTargetModule and installs Event,
// ErrorEvent and EventTarget on rt's global object.
func InstallEventTarget(rt *goja.Runtime) *EventTargetModule {
	m := &EventTargetModule{
		runtime: rt,
	}

	m.eventCtor = rt.ToValue(m.eventConstructor)
	must(rt.Set("Event", m.eventCtor))
	m.eventProto = prototypeOf(rt, m.eventCtor)
	m.installEventProtoMethods(m.eventProto)

	m.errorEventCtor = rt.ToValue(m.errorEventConstructor)
	must(rt.Set("ErrorEvent", m.errorEventCtor))
	m.errorEventProto = prototypeOf(rt, m.errorEventCtor)
	must(m.errorEventProto.SetPrototype(m.eventProto))

	m.targetCtor = rt.ToValue(m.eventTargetConstructor)
	must(rt.Set("EventTarget", m.targetCtor))
	m.targetProto = prototypeOf(rt, m.targetCtor)
	m.installTargetProtoMethods(m.targetProto)

	return m
}

// TargetPrototype returns EventTarget.prototype, for mixing the
// EventTarget capability set into another constructor's prototype chain
// (the Worker subsystem does this).
func (m *EventTargetModule) TargetPrototype() *goja.Object { return m.targetProto }

// NewErrorEvent constructs an ErrorEvent object from Go, for the Worker
// subsystem to dispatch when a child loop's exception hook observes an
// uncaught error.
func (m *EventTargetModule) NewErrorEvent(message string) *goja.Object {
	obj, err := m.runtime.New(m.errorEventCtor, m.runtime.ToValue(message))
	if err != nil {
		panic(err)
	}
	return obj
}

// NewDataEvent constructs a generic Event carrying a "data" property, the
// shape the Worker subsystem's message events use (a minimal stand-in for
// a full MessageEvent type, matching what the original's worker message
// classes actually populate).
func (m *EventTargetModule) NewDataEvent(typ string, data goja.Value) *goja.Object {
	obj, err := m.runtime.New(m.eventCtor, m.runtime.ToValue(typ))
	if err != nil {
		panic(err)
	}
	obj.Set("data", data)
	return obj
}

func prototypeOf(rt *goja.Runtime, ctor goja.Value) *goja.Object {
	obj := ctor.ToObject(rt)
	proto, _ := obj.Get("prototype").(*goja.Object)
	if proto == nil {
		proto = rt.NewObject()
		must(obj.Set("prototype", proto))
	}
	return proto
}

func (m *EventTargetModule) eventConstructor(call goja.ConstructorCall) *goja.Object {
	obj := call.This
	typ := call.Argument(0).String()

	obj.Set("type", typ)
	obj.Set("target", goja.Null())
	obj.Set("defaultPrevented", false)
	obj.Set("bubbles", false)
	obj.Set("cancelable", false)
	obj.Set("_immediateStopped", false)

	if init, ok := call.Argument(1).(*goja.Object); ok {
		// Mirrors the original's `for (var k in eventInit) { this[k] = eventInit[k]; }`:
		// every own key of eventInit is copied onto the event, not just the
		// well-known bubbles/cancelable/detail triad.
		for _, k := range init.Keys() {
			obj.Set(k, init.Get(k))
		}
	}
	return nil
}

func (m *EventTargetModule) errorEventConstructor(call goja.ConstructorCall) *goja.Object {
	m.eventConstructor(goja.ConstructorCall{This: call.This, Arguments: []goja.Value{m.runtime.ToValue("error")}})
	message := call.Argument(0).String()
	call.This.Set("message", message)
	return nil
}

func (m *EventTargetModule) installEventProtoMethods(proto *goja.Object) {
	proto.Set("preventDefault", m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		this := call.This.ToObject(m.runtime)
		if truthy(this.Get("cancelable")) {
			this.Set("defaultPrevented", true)
		}
		return goja.Undefined()
	}))
	proto.Set("stopPropagation", m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		// Single EventTarget, no tree to bubble through: a no-op kept for
		// API compatibility with script that calls it defensively.
		return goja.Undefined()
	}))
	proto.Set("stopImmediatePropagation", m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		this := call.This.ToObject(m.runtime)
		this.Set("_immediateStopped", true)
		return goja.Undefined()
	}))
}

func (m *EventTargetModule) eventTargetConstructor(call goja.ConstructorCall) *goja.Object {
	m.stateFor(call.This)
	return nil
}

// stateFor returns obj's listener registry, creating and attaching it as a
// hidden property on first use. Objects that gained EventTarget capability
// via prototype chaining (Worker instances) never ran eventTargetConstructor,
// so they allocate here instead.
func (m *EventTargetModule) stateFor(obj *goja.Object) *eventTargetState {
	if v := obj.Get(eventStateKey); v != nil {
		if s, ok := v.Export().(*eventTargetState); ok {
			return s
		}
	}
	s := &eventTargetState{listeners: make(map[string][]listenerEntry)}
	must(obj.DefineDataProperty(eventStateKey, m.runtime.ToValue(s), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE))
	return s
}

func (m *EventTargetModule) installTargetProtoMethods(proto *goja.Object) {
	proto.Set("addEventListener", m.runtime.ToValue(m.addEventListener))
	proto.Set("removeEventListener", m.runtime.ToValue(m.removeEventListener))
	proto.Set("dispatchEvent", m.runtime.ToValue(m.dispatchEvent))
}

func (m *EventTargetModule) addEventListener(call goja.FunctionCall) goja.Value {
	this := call.This.ToObject(m.runtime)
	typ := call.Argument(0).String()
	fnObj, ok := call.Argument(1).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}
	fn, ok := goja.AssertFunction(fnObj)
	if !ok {
		return goja.Undefined()
	}

	state := m.stateFor(this)
	for _, e := range state.listeners[typ] {
		if e.obj == fnObj {
			return goja.Undefined() // already registered; addEventListener is idempotent per listener identity
		}
	}
	state.nextID++
	state.listeners[typ] = append(state.listeners[typ], listenerEntry{id: state.nextID, obj: fnObj, fn: fn})
	return goja.Undefined()
}

func (m *EventTargetModule) removeEventListener(call goja.FunctionCall) goja.Value {
	this := call.This.ToObject(m.runtime)
	typ := call.Argument(0).String()
	fnObj, ok := call.Argument(1).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}

	state := m.stateFor(this)
	entries := state.listeners[typ]
	for i, e := range entries {
		if e.obj == fnObj {
			state.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (m *EventTargetModule) dispatchEvent(call goja.FunctionCall) goja.Value {
	this := call.This.ToObject(m.runtime)
	evtObj, ok := call.Argument(0).(*goja.Object)
	if !ok {
		panic(m.runtime.NewTypeError("dispatchEvent: argument must be an Event"))
	}

	m.dispatch(this, evtObj)

	return m.runtime.ToValue(!truthy(evtObj.Get("defaultPrevented")))
}

// dispatch is the host-callable core of dispatchEvent, shared with
// DispatchEventAt. Listener removal during dispatch only affects
// subsequent dispatch calls: the listener slice is snapshotted up front.
func (m *EventTargetModule) dispatch(target *goja.Object, evt *goja.Object) {
	typ := evt.Get("type").String()
	if isNullish(evt.Get("target")) {
		evt.Set("target", target)
	}
	evt.Set("_immediateStopped", false)

	state := m.stateFor(target)
	listeners := append([]listenerEntry(nil), state.listeners[typ]...)

	for _, e := range listeners {
		if truthy(evt.Get("_immediateStopped")) {
			break
		}
		if _, err := e.fn(target, evt); err != nil {
			panic(err)
		}
	}
}

// DispatchEventAt is the host-side helper of spec component E: it looks up
// dispatchEvent on target, fills in evt.target if unset, and invokes it
// with exception translation into this runtime's error kinds.
func (m *EventTargetModule) DispatchEventAt(target *goja.Object, evt *goja.Object) error {
	dispatchVal := target.Get("dispatchEvent")
	fn, ok := goja.AssertFunction(dispatchVal)
	if !ok {
		return &loop.InvariantError{Message: "dispatch target has no dispatchEvent method; register Event-Target before using it"}
	}
	if isNullish(evt.Get("target")) {
		evt.Set("target", target)
	}
	if _, err := fn(target, evt); err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			return &loop.ScriptError{Message: ex.Error(), Stack: ex.String()}
		}
		return &loop.HostError{Message: "dispatchEvent failed", Cause: err}
	}
	return nil
}

func truthy(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) && v.ToBoolean()
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
