// Package webruntime binds package loop's interpreter-agnostic event loop
// to github.com/dop251/goja, the synchronous interpreter this runtime
// assumes as an external collaborator. It installs the script-visible
// surface described by the runtime: setTimeout/setInterval/clearTimeout/
// clearInterval, console, Event/ErrorEvent/EventTarget, and Worker.
//
// The Stable Reference Table (Registry) lives here rather than in package
// loop because it is keyed on goja.Value; the generic loop package never
// imports goja.
package webruntime
