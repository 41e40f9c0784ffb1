package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/metrics"

	"golang.org/x/sync/errgroup"
)

// Triggers starts scheduled syncs; it is satisfied by the sync orchestrator.
type Triggers interface {
	TriggerDailySync(ctx context.Context) (int, error)
	TriggerIntradaySync(ctx context.Context) (int, error)
}

type Options struct {
	DailyAt             string
	IntradayEnabled     bool
	IntradayInterval    time.Duration
	MaintenanceInterval time.Duration
	Queues              []string
}

// Scheduler fires the daily and intraday triggers in UTC and keeps the queues healthy.
type Scheduler struct {
	opts     Options
	hour     int
	minute   int
	triggers Triggers
	queue    repository.IJobQueue
	now      func() time.Time
}

func New(opts Options, triggers Triggers, queue repository.IJobQueue) (*Scheduler, error) {
	hour, minute, err := ParseDailyAt(opts.DailyAt)
	if err != nil {
		return nil, err
	}
	if opts.IntradayInterval <= 0 {
		opts.IntradayInterval = time.Hour
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = 30 * time.Second
	}
	return &Scheduler{
		opts:     opts,
		hour:     hour,
		minute:   minute,
		triggers: triggers,
		queue:    queue,
		now:      time.Now,
	}, nil
}

// ParseDailyAt parses an "HH:MM" wall-clock time.
func ParseDailyAt(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// nextDailyRun returns the first hour:minute UTC strictly after now.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.GetLogger().
		WithField("daily_at", s.opts.DailyAt).
		WithField("intraday", s.opts.IntradayEnabled).
		Info("Starting scheduler")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.daily(ctx) })
	if s.opts.IntradayEnabled {
		g.Go(func() error { return s.every(ctx, s.opts.IntradayInterval, s.intraday) })
	}
	if s.queue != nil {
		g.Go(func() error { return s.every(ctx, s.opts.MaintenanceInterval, s.Maintain) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) daily(ctx context.Context) error {
	for {
		next := nextDailyRun(s.now(), s.hour, s.minute)
		logger.GetLogger().WithField("next_run", next.Format(time.RFC3339)).Debug("Daily sync scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := s.triggers.TriggerDailySync(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while triggering daily sync")
		}
	}
}

func (s *Scheduler) intraday(ctx context.Context) {
	if _, err := s.triggers.TriggerIntradaySync(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while triggering intraday sync")
	}
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Maintain requeues jobs whose lease expired, prunes finished jobs past
// retention and publishes queue depth.
func (s *Scheduler) Maintain(ctx context.Context) {
	for _, name := range s.opts.Queues {
		log := logger.GetLogger().WithField("queue", name)
		if n, err := s.queue.RecoverStalled(ctx, name); err != nil {
			log.WithField("error", err).Warn("Error while recovering stalled jobs")
		} else if n > 0 {
			log.WithField("recovered", n).Info("Recovered stalled jobs")
		}
		if n, err := s.queue.Prune(ctx, name); err != nil {
			log.WithField("error", err).Warn("Error while pruning queue")
		} else if n > 0 {
			log.WithField("pruned", n).Debug("Pruned finished jobs")
		}
		counts, err := s.queue.Stats(ctx, name)
		if err != nil {
			log.WithField("error", err).Warn("Error while reading queue stats")
			continue
		}
		metrics.SetQueueDepth(name, counts.Waiting, counts.Delayed, counts.Active, counts.Completed, counts.Failed)
	}
}
