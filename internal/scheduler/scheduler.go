// Package scheduler runs a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRunning = errors.New("run already in progress")

// Job is one pipeline cycle.
type Job func(ctx context.Context) error

// NextRun returns the first time at or after now whose local clock in loc
// reads hour:minute. A time equal to now is pushed to the next day.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

type Scheduler struct {
	hour, minute int
	loc          *time.Location
	job          Job
	log          *slog.Logger

	mu sync.Mutex

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(hour, minute int, loc *time.Location, job Job, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		hour:   hour,
		minute: minute,
		loc:    loc,
		job:    job,
		log:    log,
		now:    time.Now,
		after:  time.After,
	}
}

// Trigger runs the job unless another run holds the lock.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrRunning
	}
	defer s.mu.Unlock()
	return s.job(ctx)
}

// Run blocks until ctx is cancelled, running the job at every daily slot.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.hour, s.minute, s.loc)
		wait := next.Sub(s.now())
		s.log.Info("next run scheduled", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}

		started := time.Now()
		err := s.Trigger(ctx)
		switch {
		case errors.Is(err, ErrRunning):
			s.log.Warn("skipping scheduled run, previous run still active")
		case err != nil:
			s.log.Error("scheduled run failed", "error", err, "duration", time.Since(started))
		default:
			s.log.Info("scheduled run finished", "duration", time.Since(started))
		}
	}
}
