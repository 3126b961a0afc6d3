package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")

	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go0("waits", func(ctx context.Context) { <-ctx.Done() })

	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Counters{Active: 0, Started: 2}, s.Counters())
	assert.Empty(t, s.Tasks())
}

func TestGoRecoversPanic(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go0("panics", func(ctx context.Context) { panic("kaboom") })

	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panics: panic: kaboom")
	assert.Equal(t, uint64(1), s.Counters().Panics)
}

func TestTasksListsRunningGoroutinesByName(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewSupervisor(context.Background(), WithClock(clock))
	block := func(ctx context.Context) { <-ctx.Done() }

	s.Go0("telebot.poll", block)
	s.Go0("command.worker.0", block)
	s.Go0("command.worker.0", block)

	tasks := s.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "command.worker.0", tasks[0].Name)
	assert.Equal(t, "command.worker.0#2", tasks[1].Name)
	assert.Equal(t, "telebot.poll", tasks[2].Name)
	assert.Equal(t, clock.Now(), tasks[2].Since)
	assert.Equal(t, 3, s.Counters().Active)

	require.NoError(t, s.Stop(waitCtx(t)))
	assert.Empty(t, s.Tasks())
	assert.Error(t, s.Context().Err())
}

func TestGoRestartBacksOffOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSupervisor(context.Background(), WithClock(clock))
	ctx := waitCtx(t)

	var runs atomic.Int32
	third := make(chan struct{})
	s.GoRestart("poller", Restart{MinBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Fatal: true}, func(c context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		close(third)
		<-c.Done()
		return nil
	})

	for range 2 {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
	}
	select {
	case <-third:
	case <-ctx.Done():
		t.Fatal("third run never started")
	}

	assert.Equal(t, []Task{{Name: "poller", Since: clock.Now(), Restarts: 2}}, s.Tasks())
	assert.Equal(t, uint64(2), s.Counters().Restarts)

	err := s.Stop(ctx)
	assert.ErrorContains(t, err, "poller: transient")
	assert.Equal(t, int32(3), runs.Load())
}

func TestGoRestartGivesUpAfterLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSupervisor(context.Background(), WithClock(clock))
	ctx := waitCtx(t)

	var runs atomic.Int32
	s.GoRestart("flaky", Restart{MinBackoff: time.Millisecond, Limit: 1}, func(context.Context) error {
		runs.Add(1)
		return errors.New("down")
	})

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, uint64(1), s.Counters().Restarts)
}

func TestGoRestartStopsOnCleanExitByDefault(t *testing.T) {
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("once", Restart{}, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, s.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), runs.Load())
}

func TestRestartNormalized(t *testing.T) {
	p := Restart{MinBackoff: time.Minute}.normalized()
	assert.Equal(t, time.Minute, p.MinBackoff)
	assert.Equal(t, time.Minute, p.MaxBackoff)

	p = Restart{}.normalized()
	assert.Equal(t, 250*time.Millisecond, p.MinBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)

	for range 50 {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
