package webruntime_test

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
	"github.com/joeycumines/dtel-go/webruntime"
	"github.com/stretchr/testify/require"
)

// echoLoader returns a loader that runs script on the child runtime, ignoring
// the Worker's url argument.
func echoLoader(script string) webruntime.WorkerLoaderFunc {
	return func(rt *goja.Runtime, l *loop.Loop, url string) error {
		_, err := rt.RunString(script)
		return err
	}
}

func newParentRuntime(t *testing.T) (*goja.Runtime, *loop.Loop, *webruntime.EventTargetModule) {
	t.Helper()
	rt := goja.New()
	l := loop.New(loop.WithIdleBudget(5 * time.Millisecond))
	et := webruntime.InstallEventTarget(rt)
	return rt, l, et
}

func TestWorkerRoundTripsMessages(t *testing.T) {
	rt, l, et := newParentRuntime(t)
	webruntime.InstallWorker(rt, l, et, webruntime.WithWorkerLoader(echoLoader(`
		self.addEventListener("message", function(e) {
			postMessage(e.data * 2);
		});
	`)))

	results := make(chan int64, 1)
	require.NoError(t, rt.Set("captureResult", func(call goja.FunctionCall) goja.Value {
		results <- call.Argument(0).ToInteger()
		return goja.Undefined()
	}))

	// All Goja runtime access must complete before the loop starts running
	// on its own goroutine; once it does, only that goroutine may touch rt.
	_, err := rt.RunString(`
		var w = new Worker("child.js");
		w.addEventListener("message", function(e) { captureResult(e.data); });
		w.postMessage(21);
	`)
	require.NoError(t, err)

	done := runLoopAsyncWR(t, l)

	select {
	case v := <-results:
		require.Equal(t, int64(42), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker reply")
	}

	l.Terminate()
	require.NoError(t, <-done)
}

func TestWorkerUncaughtErrorDispatchesErrorEventAtParent(t *testing.T) {
	rt, l, et := newParentRuntime(t)
	webruntime.InstallWorker(rt, l, et, webruntime.WithWorkerLoader(echoLoader(`
		self.addEventListener("message", function(e) {
			throw new Error("boom");
		});
	`)))

	caught := make(chan string, 1)
	require.NoError(t, rt.Set("captureError", func(call goja.FunctionCall) goja.Value {
		caught <- call.Argument(0).String()
		return goja.Undefined()
	}))

	_, err := rt.RunString(`
		var w = new Worker("child.js");
		w.addEventListener("error", function(e) { captureError(e.message); });
		w.postMessage(1);
	`)
	require.NoError(t, err)

	done := runLoopAsyncWR(t, l)

	select {
	case msg := <-caught:
		require.Contains(t, msg, "boom")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker error")
	}

	l.Terminate()
	require.NoError(t, <-done)
}

func TestWorkerTerminateJoinsChildLoop(t *testing.T) {
	rt, l, et := newParentRuntime(t)
	webruntime.InstallWorker(rt, l, et, webruntime.WithWorkerLoader(echoLoader(`
		self.addEventListener("message", function(e) {});
	`)))

	_, err := rt.RunString(`
		var w = new Worker("child.js");
		w.terminate();
	`)
	require.NoError(t, err)

	done := runLoopAsyncWR(t, l)

	l.Terminate()
	require.NoError(t, <-done)
}

func TestWorkerConstructorPropagatesLoaderError(t *testing.T) {
	rt, l, et := newParentRuntime(t)
	webruntime.InstallWorker(rt, l, et) // default loader is unimplemented

	_, err := rt.RunString(`new Worker("child.js");`)
	require.Error(t, err)
}
