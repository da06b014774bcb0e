package loop

import "time"

// loopOptions holds the resolved configuration for a Loop.
type loopOptions struct {
	idleBudget        time.Duration
	taskPoolSize      int
	processException  ProcessExceptionFunc
	logger            Logger
}

// Option configures a Loop at construction time.
type Option interface {
	applyLoop(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) applyLoop(o *loopOptions) { f(o) }

// WithIdleBudget sets the default sleep horizon used when no loop-runner
// requests an earlier wake. Defaults to 2 seconds.
func WithIdleBudget(d time.Duration) Option {
	return optionFunc(func(o *loopOptions) { o.idleBudget = d })
}

// WithTaskPoolSize sets the number of goroutines backing PostTask. Defaults
// to 3.
func WithTaskPoolSize(n int) Option {
	return optionFunc(func(o *loopOptions) { o.taskPoolSize = n })
}

// WithProcessException overrides the loop's exception hook.
func WithProcessException(fn ProcessExceptionFunc) Option {
	return optionFunc(func(o *loopOptions) { o.processException = fn })
}

// WithLogger sets a Logger used only by this Loop, instead of the
// package-level global.
func WithLogger(logger Logger) Option {
	return optionFunc(func(o *loopOptions) { o.logger = logger })
}

func resolveOptions(opts []Option) *loopOptions {
	cfg := &loopOptions{
		idleBudget:       2 * time.Second,
		taskPoolSize:     3,
		processException: defaultProcessException,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	return cfg
}
