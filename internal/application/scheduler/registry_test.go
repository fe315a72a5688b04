package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

func newRegistry() *scheduler.Registry {
	return scheduler.NewRegistry(time.UTC, time.Second, logger.Nop())
}

func TestRegister_ValidaExpresionYDuplicados(t *testing.T) {
	r := newRegistry()
	noop := func(context.Context) (any, error) { return nil, nil }

	require.NoError(t, r.Register("a", scheduler.Schedule{Spec: "55 23 * * *"}, noop))
	require.NoError(t, r.Register("b", scheduler.Schedule{Spec: "@every 15m"}, noop))
	assert.ErrorIs(t, r.Register("a", scheduler.Schedule{Spec: "@hourly"}, noop), domain.ErrConflict)
	assert.ErrorIs(t, r.Register("c", scheduler.Schedule{Spec: "no es cron"}, noop), domain.ErrInvalidInput)

	st := r.Status()
	assert.False(t, st.Initialized)
	assert.Equal(t, 2, st.TotalJobs)
	assert.Equal(t, "a", st.Jobs[0].Name)
	assert.Equal(t, "55 23 * * *", st.Jobs[0].CronExpression)
}

func TestRunNow_TareaInexistente(t *testing.T) {
	r := newRegistry()
	_, err := r.RunNow(context.Background(), "fantasma")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, r.StartJob("fantasma"), domain.ErrJobNotFound)
	assert.ErrorIs(t, r.StopJob("fantasma"), domain.ErrJobNotFound)
}

func TestRunNow_MismoFormatoExitoYFalla(t *testing.T) {
	r := newRegistry()
	fail := true
	require.NoError(t, r.Register("j", scheduler.Schedule{Spec: "@hourly"}, func(context.Context) (any, error) {
		if fail {
			return map[string]int{"procesadas": 0}, errors.New("db caída")
		}
		return map[string]int{"procesadas": 3}, nil
	}))

	res, err := r.RunNow(context.Background(), "j")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "db caída", res.Error)
	assert.Equal(t, "j", res.Job)

	fail = false
	res, err = r.RunNow(context.Background(), "j")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]int{"procesadas": 3}, res.Result)

	st := r.Status().Jobs[0]
	assert.Equal(t, int64(2), st.Runs)
	assert.Equal(t, int64(1), st.Failures)
	assert.Empty(t, st.LastError)
	assert.NotNil(t, st.LastRunAt)
}

func TestRunNow_PanicSeRecupera(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register("p", scheduler.Schedule{Spec: "@hourly"}, func(context.Context) (any, error) {
		panic("boom")
	}))
	res, err := r.RunNow(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestRunNow_TimeoutAcotaLaTarea(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register("lenta", scheduler.Schedule{Spec: "@hourly", Timeout: 20 * time.Millisecond},
		func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	start := time.Now()
	res, err := r.RunNow(context.Background(), "lenta")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunNow_UnaTareaNoCorreConsigoMisma(t *testing.T) {
	r := newRegistry()
	var current, maxSeen atomic.Int32
	require.NoError(t, r.Register("s", scheduler.Schedule{Spec: "@hourly"}, func(context.Context) (any, error) {
		n := current.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.RunNow(context.Background(), "s")
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestStartStopRestart(t *testing.T) {
	r := newRegistry()
	var startupRuns atomic.Int32
	require.NoError(t, r.Register("arranque", scheduler.Schedule{Spec: "@every 15m", RunOnStart: true}, func(context.Context) (any, error) {
		startupRuns.Add(1)
		return nil, nil
	}))
	require.NoError(t, r.Register("otra", scheduler.Schedule{Spec: "0 * * * *"}, func(context.Context) (any, error) {
		return nil, nil
	}))

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, func() bool { return startupRuns.Load() == 1 }, time.Second, 5*time.Millisecond)

	st := r.Status()
	assert.True(t, st.Initialized)
	for _, j := range st.Jobs {
		assert.True(t, j.Scheduled, j.Name)
	}

	require.NoError(t, r.StopJob("otra"))
	for _, j := range r.Status().Jobs {
		assert.Equal(t, j.Name == "arranque", j.Scheduled, j.Name)
	}
	require.NoError(t, r.StartJob("otra"))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.StopAll(stopCtx))
	st = r.Status()
	assert.False(t, st.Initialized)
	for _, j := range st.Jobs {
		assert.False(t, j.Scheduled, j.Name)
	}

	require.NoError(t, r.Restart(stopCtx))
	assert.True(t, r.Status().Initialized)
	assert.Eventually(t, func() bool { return startupRuns.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.StopAll(stopCtx))
}
