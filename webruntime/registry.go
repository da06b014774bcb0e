package webruntime

import "github.com/dop251/goja"

// Ref is a Stable Reference Table handle: a positive integer naming a
// rooted goja.Value. Zero means "no reference."
type Ref uint32

// Registry is the Stable Reference Table (spec component A): it assigns
// numeric IDs to goja values so host-side Go structures with long lifetimes
// (timer entries, event closures, worker handles) can hold an int instead
// of a goja.Value directly, and recover the value on demand.
//
// Registry is NOT safe for concurrent use: per the runtime's design, the
// table is touched only from the owning Loop's goroutine, same as any other
// interaction with the interpreter context.
type Registry struct {
	slots    []goja.Value // index 0 is reserved, always nil
	freeList []Ref
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{slots: make([]goja.Value, 1)}
}

// Create roots v and returns its handle. Mirrors the original's push-style
// "create expects the value at the top of the stack and consumes it" -
// here, the caller simply passes the value in directly.
func (r *Registry) Create(v goja.Value) Ref {
	if n := len(r.freeList); n > 0 {
		id := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.slots[id] = v
		return id
	}
	r.slots = append(r.slots, v)
	return Ref(len(r.slots) - 1)
}

// Push returns the value rooted at ref, for re-use (for example, to invoke
// it as a callback). ok is false for ref == 0 or a released/unknown handle.
func (r *Registry) Push(ref Ref) (v goja.Value, ok bool) {
	if ref == 0 || int(ref) >= len(r.slots) {
		return nil, false
	}
	v = r.slots[ref]
	if v == nil {
		return nil, false
	}
	return v, true
}

// Release drops the binding for ref and returns its ID to the free list.
// Returns false if ref was already released or never allocated.
func (r *Registry) Release(ref Ref) bool {
	if ref == 0 || int(ref) >= len(r.slots) || r.slots[ref] == nil {
		return false
	}
	r.slots[ref] = nil
	r.freeList = append(r.freeList, ref)
	return true
}

// Len reports the number of live (non-released) references, for tests and
// diagnostics.
func (r *Registry) Len() int {
	return len(r.slots) - 1 - len(r.freeList)
}
