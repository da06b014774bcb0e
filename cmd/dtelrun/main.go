// Command dtelrun demonstrates the async runtime layer: console output,
// timers, Event-Target dispatch and a Worker round trip, all driven from a
// single script evaluated against a freshly wired Runtime.
//
// Run with: go run ./cmd/dtelrun
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/loop"
	"github.com/joeycumines/dtel-go/webruntime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rt := webruntime.New(webruntime.Config{
		LoopOptions:   []loop.Option{loop.WithIdleBudget(2 * time.Second)},
		ConsoleWorker: webruntime.WriterConsoleSink{W: os.Stdout},
		WorkerOptions: []webruntime.WorkerOption{
			webruntime.WithWorkerLoader(webruntime.WorkerLoaderFunc(echoWorkerScript)),
		},
	})

	// All Goja runtime access must complete before the loop starts running
	// on its own goroutine; once it does, only that goroutine may touch
	// rt.Script.
	if _, err := rt.Script.RunString(demoScript); err != nil {
		fmt.Fprintln(os.Stderr, "script error:", err)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}

	rt.Loop.Terminate()
	if err := <-done; err != nil {
		fmt.Fprintln(os.Stderr, "loop error:", err)
		os.Exit(1)
	}
}

// echoWorkerScript installs a worker that doubles any number it's sent,
// standing in for whatever script-loading policy a real embedder supplies.
func echoWorkerScript(rt *goja.Runtime, l *loop.Loop, url string) error {
	_, err := rt.RunString(`
		self.addEventListener("message", function(e) {
			postMessage(e.data * 2);
		});
	`)
	return err
}

const demoScript = `
console.log("dtelrun starting up");

var target = new EventTarget();
target.addEventListener("greeting", function(e) {
	console.log("heard greeting:", e.detail);
});

setTimeout(function() {
	target.dispatchEvent(new Event("greeting", {detail: "hello from a timer"}));
}, 50);

var worker = new Worker("echo.js");
worker.addEventListener("message", function(e) {
	console.log("worker replied with:", e.data);
});
worker.addEventListener("error", function(e) {
	console.error("worker errored:", e.message);
});
worker.postMessage(21);

setInterval(function() {
	console.debug("tick");
}, 500);
`
