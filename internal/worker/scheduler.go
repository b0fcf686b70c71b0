package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their intervals. When a Locker is set, a run is
// skipped while another instance holds the job's lock.
type Scheduler struct {
	jobs    []Job
	lock    Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewScheduler builds a scheduler. lock may be nil for single-instance setups.
func NewScheduler(lock Locker, lockTTL time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Scheduler{lock: lock, lockTTL: lockTTL, logger: logger}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 || job.Run == nil {
		s.logger.Warn("job disabled", zap.String("job", job.Name))
		return
	}
	s.jobs = append(s.jobs, job)
}

// Start runs every job once immediately and then on its ticker until ctx is
// cancelled. It blocks until all job loops have stopped.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	s.RunOnce(ctx, job)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx, job)
		case <-ctx.Done():
			s.logger.Info("job stopped", zap.String("job", job.Name))
			return
		}
	}
}

// RunOnce executes job under its lock. It reports whether the job ran.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) bool {
	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx, "job:"+job.Name, s.lockTTL)
		if err != nil {
			s.logger.Error("job lock failed", zap.String("job", job.Name), zap.Error(err))
			return false
		}
		if !ok {
			s.logger.Debug("job skipped; lock held elsewhere", zap.String("job", job.Name))
			return false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("job lock release failed", zap.String("job", job.Name), zap.Error(err))
			}
		}()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		return true
	}
	s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(started)))
	return true
}
