package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs sync jobs on fixed intervals and at fixed local wall
// clock times. Jobs that overlap their own previous invocation are
// expected to coalesce internally (the engines return ErrRunInProgress).
type Scheduler struct {
	loc    *time.Location
	logger *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	// now is swappable in tests
	now func() time.Time
}

// Job is a schedulable unit of work.
type Job func(ctx context.Context) error

// NewScheduler creates a scheduler whose daily times are interpreted
// in loc.
func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		loc:    loc,
		logger: logger.Named("scheduler"),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Every runs job once after initialDelay and then on every interval tick.
func (s *Scheduler) Every(name string, interval, initialDelay time.Duration, timeout time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("scheduled periodic job",
			zap.String("job", name),
			zap.Duration("interval", interval),
			zap.Duration("initial_delay", initialDelay))

		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
			s.invoke(name, timeout, job)
		case <-s.stopCh:
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.invoke(name, timeout, job)
			case <-s.stopCh:
				return
			}
		}
	}()
}

// DailyAt runs job every day at each of the given local "HH:MM" times.
func (s *Scheduler) DailyAt(name string, at []string, timeout time.Duration, job Job) error {
	for _, hhmm := range at {
		parsed, err := time.Parse("15:04", hhmm)
		if err != nil {
			return fmt.Errorf("invalid schedule time %q for job %s: %w", hhmm, name, err)
		}
		s.daily(name, parsed.Hour(), parsed.Minute(), timeout, job)
	}
	s.logger.Info("scheduled daily job", zap.String("job", name), zap.Strings("at", at))
	return nil
}

func (s *Scheduler) daily(name string, hour, minute int, timeout time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			wait := s.untilNext(hour, minute)
			timer := time.NewTimer(wait)

			select {
			case <-timer.C:
				s.invoke(name, timeout, job)
			case <-s.stopCh:
				timer.Stop()
				return
			}
		}
	}()
}

// untilNext returns the duration until the next local occurrence of hour:minute.
func (s *Scheduler) untilNext(hour, minute int) time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) invoke(name string, timeout time.Duration, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := s.now()
	err := job(ctx)
	switch {
	case err == nil:
		s.logger.Info("job completed",
			zap.String("job", name),
			zap.Duration("took", s.now().Sub(start)))
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("job skipped, previous run still active", zap.String("job", name))
	default:
		s.logger.Error("job failed",
			zap.String("job", name),
			zap.Duration("took", s.now().Sub(start)),
			zap.Error(err))
	}
}

// Stop halts all scheduled jobs and waits for in-flight invocations.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
