package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultJobTimeout = 2 * time.Minute
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered jobs once per interval, on whichever worker
// holds the lock for that cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	cycles     int64
}

// cycleReport summarises one pass over the registry.
type cycleReport struct {
	skipped bool
	ran     int
	failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	s.cycles++
	cycleCtx := s.logg.WithField(ctx, "cycle", s.cycles)
	report, err := s.runCycle(cycleCtx)
	if err != nil {
		s.logg.Error(cycleCtx, "cron cycle aborted", err)
		return
	}
	if report.skipped {
		return
	}
	summary := s.logg.WithFields(cycleCtx, map[string]any{
		"jobs_run":    report.ran,
		"jobs_failed": report.failed,
	})
	if len(report.failed) > 0 {
		s.logg.Warn(summary, "cron cycle finished with failures")
		return
	}
	s.logg.Info(summary, "cron cycle finished")
}

// runCycle only returns an error when the lock cannot be consulted; job
// failures are reported and never stop the remaining jobs.
func (s *Service) runCycle(ctx context.Context) (cycleReport, error) {
	var report cycleReport
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		report.skipped = true
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		report.ran++
		if err := s.runJob(ctx, job); err != nil {
			report.failed = append(report.failed, job.Name())
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.deadlineFor(job))
	defer cancel()

	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)

	logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if s.metrics != nil {
		s.metrics.ObserveDuration(name, elapsed)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logCtx = s.logg.WithField(logCtx, "timed_out", true)
		}
		s.logg.Error(logCtx, "cron job failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(name)
		}
		return err
	}
	s.logg.Info(logCtx, "cron job done")
	if s.metrics != nil {
		s.metrics.IncSuccess(name)
	}
	return nil
}

func (s *Service) deadlineFor(job Job) time.Duration {
	if d, ok := job.(Deadliner); ok && d.Deadline() > 0 {
		return d.Deadline()
	}
	return s.jobTimeout
}
