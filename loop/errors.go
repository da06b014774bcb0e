package loop

import "fmt"

// ScriptError is an error raised from inside the interpreter: a script-level
// throw caught while applying or releasing an Event.
type ScriptError struct {
	Message string
	Stack   string
	Cause   error
}

func (e *ScriptError) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("script error: %s\n%s", e.Message, e.Stack)
	}
	return fmt.Sprintf("script error: %s", e.Message)
}

func (e *ScriptError) Unwrap() error { return e.Cause }

// HostError is an error raised from host code invoked via the interpreter
// (for example, a panic recovered inside a bound Go function).
type HostError struct {
	Message string
	Cause   error
}

func (e *HostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("host error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("host error: %s", e.Message)
}

func (e *HostError) Unwrap() error { return e.Cause }

// InvariantError indicates misuse by the embedder, such as registering the
// Worker subsystem before the Event-Target layer.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Message)
}

// WrapError wraps cause with a message using %w, matching the style used
// throughout this runtime for error construction.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// ExceptionDecision is the result of offering an error to a Loop's
// ProcessException hook. Modeled as a small sum type rather than a bare
// bool, with Rethrow, Handled and HandledWith as its three constructors.
type ExceptionDecision struct {
	// Handled, if true, allows the loop to continue draining its event
	// queue. If false, Run unwinds, returning Err.
	Handled bool
	// Err is the error that is returned from Run when Handled is false. If
	// it is nil, Run returns the original error. A hook may replace it. Run
	// does not read Err when Handled is true.
	Err error
}

// ProcessExceptionFunc is the loop's overridable fault-handling hook. The
// default, used when none is configured, always returns Rethrow(err).
type ProcessExceptionFunc func(err error) ExceptionDecision

// Rethrow constructs the default, "unhandled" decision.
func Rethrow(err error) ExceptionDecision {
	return ExceptionDecision{Handled: false, Err: err}
}

// Handled constructs a decision indicating the loop should continue.
func Handled() ExceptionDecision {
	return ExceptionDecision{Handled: true}
}

// HandledWith constructs a decision indicating the loop should continue,
// carrying replacement in Err. The Loop itself does nothing further with
// replacement: a handled error is not passed on anywhere by Run.
func HandledWith(replacement error) ExceptionDecision {
	return ExceptionDecision{Handled: true, Err: replacement}
}

func defaultProcessException(err error) ExceptionDecision {
	return Rethrow(err)
}

// panicToError normalizes a recovered panic value into an error.
func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
