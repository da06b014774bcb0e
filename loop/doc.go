// Package loop implements the asynchronous runtime's interpreter-agnostic
// core: a single-threaded cooperative event loop, a fixed-size task pool for
// off-loop work, loop-runner extension points, and the deadline-ordered
// timer subsystem that sits on top of them.
//
// Nothing in this package knows about any particular script interpreter.
// The loop drives opaque Event values (apply/release, both invoked on the
// loop's own goroutine) and Task values (run on the task pool, never given
// access to the loop at all). The goja-specific bindings - rooting script
// callbacks, installing setTimeout on a runtime's global object, and so on -
// live one layer up, in package webruntime.
//
// # Usage
//
//	l := loop.New(loop.WithIdleBudget(2 * time.Second))
//	timers := loop.NewTimers(l)
//	go func() { _ = l.Run() }()
//
//	id := timers.SetTimeout(func() error { fmt.Println("fired"); return nil }, 100*time.Millisecond)
//	defer timers.ClearTimeout(id)
//
//	l.Terminate()
//
// # Concurrency
//
// Run must be called from exactly one goroutine for the lifetime of the
// Loop; that goroutine is the only one that ever invokes an Event's Apply or
// Release methods. PostEvent, PostTask, AddLoopRunner, NotifyChanged and
// Terminate are all safe to call from any goroutine.
package loop
