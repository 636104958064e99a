// Package sweep runs the periodic auto-completion and reminder passes.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Jobs is implemented by *service.Service.
type Jobs interface {
	CompleteOverdue(ctx context.Context) (int, error)
	SendReminders(ctx context.Context) (int, error)
}

type Sweeper struct {
	jobs     Jobs
	log      *slog.Logger
	interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(jobs Jobs, log *slog.Logger, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		jobs:     jobs,
		log:      log.With("component", "sweeper"),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a pass immediately and then once per interval until Stop is
// called or ctx is cancelled. It blocks.
func (s *Sweeper) Start(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval.String())
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			s.log.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.log.Info("sweeper context cancelled")
			return
		}
	}
}

// Stop ends Start and waits for an in-flight pass to finish. Safe to call
// more than once; only call it after Start has been launched.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// RunOnce performs one completion pass followed by one reminder pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	completed, err := s.jobs.CompleteOverdue(ctx)
	if err != nil {
		s.log.Error("auto-complete pass failed", "error", err)
	}
	reminded, err := s.jobs.SendReminders(ctx)
	if err != nil {
		s.log.Error("reminder pass failed", "error", err)
	}
	if completed > 0 || reminded > 0 {
		s.log.Debug("sweep pass", "completed", completed, "reminded", reminded)
	}
}
