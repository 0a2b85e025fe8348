package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sequoiaprint/keka-integrations/internal/metrics"
)

// Limiter enforces a calls-per-window quota against a checkpoint's
// rate accounting. When the quota is reached it pauses in place,
// sleeping out the remainder of the window before resuming. Every
// state change is persisted before any sleep so a killed process
// resumes with accurate accounting.
type Limiter struct {
	engine      string
	quota       int
	window      time.Duration
	checkpoints *CheckpointStore
	logger      *zap.Logger

	// now and sleep are swappable in tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter creates a Limiter for one engine identified by name.
func NewLimiter(name string, quota int, window time.Duration, checkpoints *CheckpointStore, logger *zap.Logger) *Limiter {
	return &Limiter{
		engine:      name,
		quota:       quota,
		window:      window,
		checkpoints: checkpoints,
		logger:      logger.Named("ratelimit"),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordCall charges one remote call against cp and persists the new
// count. If the window has elapsed the count restarts at one. When the
// charge reaches the quota, the engine is paused: the paused flag is
// persisted, the limiter sleeps out a full window, then the count is
// reset and persisted again. paused reports whether a pause occurred.
func (l *Limiter) RecordCall(ctx context.Context, cp *Checkpoint) (paused bool, err error) {
	now := l.now()

	if now.Sub(cp.WindowStart) > l.window {
		cp.CallCount = 1
		cp.WindowStart = now
		cp.Paused = false
	} else {
		cp.CallCount++
	}

	if err := l.checkpoints.Save(ctx, cp); err != nil {
		return false, err
	}

	if cp.CallCount < l.quota {
		return false, nil
	}

	l.logger.Info("rate limit reached, pausing",
		zap.String("engine", l.engine),
		zap.Int("calls", cp.CallCount),
		zap.Int("quota", l.quota),
		zap.Duration("pause", l.window))
	metrics.RateLimitPausesTotal.WithLabelValues(l.engine).Inc()

	cp.Paused = true
	if err := l.checkpoints.Save(ctx, cp); err != nil {
		return false, err
	}

	if err := l.sleep(ctx, l.window); err != nil {
		// Leave the paused flag set; the next Load clears it without
		// sleeping again.
		return true, err
	}

	cp.CallCount = 0
	cp.WindowStart = l.now()
	cp.Paused = false
	if err := l.checkpoints.Save(ctx, cp); err != nil {
		return true, err
	}

	l.logger.Info("rate limit window reset, resuming", zap.String("engine", l.engine))
	return true, nil
}
