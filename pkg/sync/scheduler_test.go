package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_EveryRunsAfterInitialDelayAndTicks(t *testing.T) {
	s := NewScheduler(time.UTC, zap.NewNop())
	defer s.Stop()

	var runs atomic.Int32
	s.Every("test-job", 30*time.Millisecond, 10*time.Millisecond, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_EveryToleratesJobErrors(t *testing.T) {
	s := NewScheduler(time.UTC, zap.NewNop())
	defer s.Stop()

	var runs atomic.Int32
	s.Every("flaky-job", 20*time.Millisecond, 0, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		if runs.Load()%2 == 0 {
			return ErrRunInProgress
		}
		return errors.New("boom")
	})

	// Errors and in-progress skips do not stop the schedule
	require.Eventually(t, func() bool { return runs.Load() >= 4 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_InvokeAppliesTimeout(t *testing.T) {
	s := NewScheduler(time.UTC, zap.NewNop())
	defer s.Stop()

	deadlined := make(chan error, 1)
	s.Every("slow-job", time.Hour, 0, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		deadlined <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-deadlined:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job context was never cancelled")
	}
}

func TestScheduler_DailyAtRejectsInvalidTime(t *testing.T) {
	s := NewScheduler(time.UTC, zap.NewNop())
	defer s.Stop()

	err := s.DailyAt("bad-job", []string{"09:00", "25:99"}, time.Second, func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "25:99")
}

func TestScheduler_UntilNext(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	s := NewScheduler(ist, zap.NewNop())
	s.now = func() time.Time {
		return time.Date(2025, 8, 28, 9, 30, 0, 0, ist)
	}

	// Later today
	require.Equal(t, 30*time.Minute, s.untilNext(10, 0))
	// Already passed, so tomorrow
	require.Equal(t, 23*time.Hour+30*time.Minute, s.untilNext(9, 0))
	// Exactly now also rolls to tomorrow
	require.Equal(t, 24*time.Hour, s.untilNext(9, 30))
}

func TestScheduler_StopHaltsJobs(t *testing.T) {
	s := NewScheduler(time.UTC, zap.NewNop())

	var runs atomic.Int32
	s.Every("test-job", 10*time.Millisecond, 0, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, s.DailyAt("daily-job", []string{"00:00"}, time.Second, func(ctx context.Context) error {
		return nil
	}))

	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)

	s.Stop()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}
