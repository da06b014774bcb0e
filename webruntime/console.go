package webruntime

import (
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
)

// ConsoleWorker receives console output and clear requests. Installed
// scripts never see the sink directly: log/debug/info/warn/error all funnel
// through Output, and console.clear() through Clear. The name and contract
// only are taken from the original's console-to-worker dispatch; embedders
// supply their own implementation.
type ConsoleWorker interface {
	// Output is called with the method name ("log", "debug", "info",
	// "warn", "error") and the space-joined, string-coerced arguments.
	Output(kind string, text string)
	Clear()
}

// WriterConsoleSink is a ConsoleWorker that writes "[kind] text" lines to
// an io.Writer, for embedders that just want console output on a stream.
type WriterConsoleSink struct {
	W io.Writer
}

func (s WriterConsoleSink) Output(kind string, text string) {
	fmt.Fprintf(s.W, "[%s] %s\n", kind, text)
}

func (s WriterConsoleSink) Clear() {}

// InstallConsole installs a console global on rt backed by worker, covering
// log/debug/info/warn/error and clear. Argument coercion joins every
// argument with a single space, matching the original's array-enumeration
// join (console.log(1, "a", {}) logs "1 a [object Object]").
func InstallConsole(rt *goja.Runtime, worker ConsoleWorker) {
	console := rt.NewObject()

	for _, level := range []string{"log", "debug", "info", "warn", "error"} {
		level := level
		must(console.Set(level, rt.ToValue(func(call goja.FunctionCall) goja.Value {
			worker.Output(level, joinArguments(call.Arguments))
			return goja.Undefined()
		})))
	}

	must(console.Set("clear", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		worker.Clear()
		return goja.Undefined()
	})))

	must(rt.Set("console", console))
}

func joinArguments(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
