package loop_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/dtel-go/loop"
	"github.com/stretchr/testify/require"
)

func TestTimersOneShotFiresOnce(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(10 * time.Millisecond))
	timers := loop.NewTimers(l)
	done := runLoopAsync(t, l)

	var count atomic.Int32
	timers.SetTimeout(func() error { count.Add(1); return nil }, 20*time.Millisecond)

	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())

	l.Terminate()
	require.NoError(t, <-done)
}

func TestTimersOrderingByDeadline(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(5 * time.Millisecond))
	timers := loop.NewTimers(l)
	done := runLoopAsync(t, l)

	var mu sync.Mutex
	var order []string

	timers.SetTimeout(func() error {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return nil
	}, 60*time.Millisecond)
	timers.SetTimeout(func() error {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return nil
	}, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, time.Millisecond)

	l.Terminate()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTimersIntervalCadenceAndClear(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(5 * time.Millisecond))
	timers := loop.NewTimers(l)
	done := runLoopAsync(t, l)

	var count atomic.Int32
	var id uint64
	var idMu sync.Mutex

	idMu.Lock()
	id = timers.SetInterval(func() error {
		n := count.Add(1)
		if n == 4 {
			idMu.Lock()
			timers.ClearInterval(id)
			idMu.Unlock()
		}
		return nil
	}, 20*time.Millisecond)
	idMu.Unlock()

	require.Eventually(t, func() bool { return count.Load() >= 4 }, 2*time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(4), count.Load())

	l.Terminate()
	require.NoError(t, <-done)
}

func TestTimersClearBeforeFireYieldsZeroInvocations(t *testing.T) {
	l := loop.New(loop.WithIdleBudget(5 * time.Millisecond))
	timers := loop.NewTimers(l)
	done := runLoopAsync(t, l)

	var count atomic.Int32
	id := timers.SetTimeout(func() error { count.Add(1); return nil }, 100*time.Millisecond)

	require.True(t, timers.ClearTimeout(id))
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(0), count.Load())

	l.Terminate()
	require.NoError(t, <-done)
}

func TestTimersClearIsIdempotent(t *testing.T) {
	l := loop.New()
	timers := loop.NewTimers(l)

	id := timers.SetTimeout(func() error { return nil }, time.Hour)
	require.True(t, timers.ClearTimeout(id))
	require.False(t, timers.ClearTimeout(id))
	require.False(t, timers.ClearTimeout(id+1000))
}
