package loop_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/dtel-go/loop"
	"github.com/stretchr/testify/require"
)

func runLoopAsync(t *testing.T, l *loop.Loop) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	return done
}

func TestLoopAppliesEventsFIFO(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(50 * time.Millisecond))
	done := runLoopAsync(t, l)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		i := i
		l.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return nil
		}})
	}

	wg.Wait()
	l.Terminate()
	require.NoError(t, <-done)

	require.Equal(t, []int{0, 1, 2}, order)
}

func TestLoopApplyAndReleaseBothRun(t *testing.T) {
	l := loop.New()
	done := runLoopAsync(t, l)

	var applied, released atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	l.PostEvent(loop.FuncEvent{
		ApplyFunc: func() error {
			applied.Store(true)
			return nil
		},
		ReleaseFunc: func() error {
			released.Store(true)
			wg.Done()
			return nil
		},
	})

	wg.Wait()
	l.Terminate()
	require.NoError(t, <-done)

	require.True(t, applied.Load())
	require.True(t, released.Load())
}

func TestLoopReleaseRunsEvenIfApplyErrors(t *testing.T) {
	l := loop.New(loop.WithProcessException(func(err error) loop.ExceptionDecision {
		return loop.Handled()
	}))
	done := runLoopAsync(t, l)

	var released atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	l.PostEvent(loop.FuncEvent{
		ApplyFunc: func() error {
			return errors.New("boom")
		},
		ReleaseFunc: func() error {
			released.Store(true)
			wg.Done()
			return nil
		},
	})

	wg.Wait()
	l.Terminate()
	require.NoError(t, <-done)
	require.True(t, released.Load())
}

func TestLoopUnhandledExceptionUnwindsRun(t *testing.T) {
	sentinel := errors.New("sentinel")
	l := loop.New()
	done := runLoopAsync(t, l)

	l.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
		return sentinel
	}})

	err := <-done
	require.ErrorIs(t, err, sentinel)
}

func TestLoopPostEventFromAnyGoroutine(t *testing.T) {
	l := loop.New()
	done := runLoopAsync(t, l)

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.PostEvent(loop.FuncEvent{ApplyFunc: func() error {
				count.Add(1)
				return nil
			}})
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return count.Load() == 10 }, time.Second, time.Millisecond)
	l.Terminate()
	require.NoError(t, <-done)
}

func TestLoopRunnerPriorityOrdering(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(10 * time.Millisecond))

	var mu sync.Mutex
	var order []string

	runner := func(name string) loop.LoopRunner {
		return runnerFunc(func(now time.Time) (time.Time, bool) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return time.Time{}, false
		})
	}

	l.AddLoopRunner(runner("low"), 10)
	l.AddLoopRunner(runner("high"), 1)
	l.AddLoopRunner(runner("mid"), 5)

	done := runLoopAsync(t, l)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 3
	}, time.Second, time.Millisecond)

	l.Terminate()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "high", order[0])
	require.Equal(t, "mid", order[1])
	require.Equal(t, "low", order[2])
}

func TestLoopTerminateDrainsQueueWithoutApplying(t *testing.T) {
	l := loop.New()
	done := runLoopAsync(t, l)

	// Give the loop one full tick so it settles into sleeping before we
	// terminate and post in the same moment.
	require.Eventually(t, func() bool { return l.State() == loop.StateSleeping }, time.Second, time.Millisecond)

	var applied atomic.Bool
	var released atomic.Bool
	l.Terminate()
	l.PostEvent(loop.FuncEvent{
		ApplyFunc: func() error {
			applied.Store(true)
			return nil
		},
		ReleaseFunc: func() error {
			released.Store(true)
			return nil
		},
	})

	require.NoError(t, <-done)
	// Depending on scheduling, the event is either released by the shutdown
	// drain or posted after it, so Release may or may not have run. Apply
	// never runs: the sleeping loop observes Terminate as soon as it wakes,
	// before it drains any events.
	require.Equal(t, loop.StateTerminated, l.State())
	require.False(t, applied.Load())
	_ = released.Load()
}

type runnerFunc func(now time.Time) (time.Time, bool)

func (f runnerFunc) RunTick(now time.Time) (time.Time, bool) { return f(now) }
