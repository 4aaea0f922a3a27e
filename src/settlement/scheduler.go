package settlement

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns the cron that triggers the submission run and the
// settlement poller. Registration is guarded by a host-local file lock so
// that exactly one process per host runs the jobs; workers that lose the
// race skip registration and serve everything else as usual. This is not a
// distributed lease, a multi-host deployment needs one scheduler host.
type Scheduler struct {
	pipeline *Pipeline
	lock     *flock.Flock
	cron     *cron.Cron
	hour     int
	minute   int
	logger   *zap.Logger
}

func NewScheduler(pipeline *Pipeline, lockPath string, hour, minute int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		lock:     flock.New(lockPath),
		hour:     hour,
		minute:   minute,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// TryAcquireExclusiveRun attempts the non-blocking lock. The capability is
// kept explicit so the file lock can later be swapped for a distributed
// lease without touching callers.
func (s *Scheduler) TryAcquireExclusiveRun() (bool, error) {
	held, err := s.lock.TryLock()
	if err != nil {
		return false, errors.Wrapf(err, "failed acquiring scheduler lock at %s", s.lock.Path())
	}
	return held, nil
}

// Start registers and starts the cron jobs if this process wins the lock.
// Returns false when another process on this host already holds it.
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	held, err := s.TryAcquireExclusiveRun()
	if err != nil {
		return false, err
	}
	if !held {
		s.logger.Info("scheduler lock already held by another process, skipping job registration")
		return false, nil
	}

	s.cron = cron.New()
	submitSpec := fmt.Sprintf("%d %d * * *", s.minute, s.hour)
	if _, err := s.cron.AddFunc(submitSpec, func() {
		if err := s.pipeline.RunSubmissions(ctx); err != nil {
			s.logger.Error("scheduled submission run failed", zap.Error(err))
		}
	}); err != nil {
		s.release()
		return false, errors.Wrapf(err, "failed registering submission job %q", submitSpec)
	}

	pollSpec := fmt.Sprintf("@every %s", s.pipeline.pollInterval)
	if _, err := s.cron.AddFunc(pollSpec, func() {
		if err := s.pipeline.PollSettlements(ctx); err != nil {
			s.logger.Error("settlement poll failed", zap.Error(err))
		}
	}); err != nil {
		s.release()
		return false, errors.Wrapf(err, "failed registering poll job %q", pollSpec)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("submit_spec", submitSpec), zap.String("poll_spec", pollSpec))
	return true, nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.release()
}

func (s *Scheduler) release() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed releasing scheduler lock", zap.Error(err))
	}
}
