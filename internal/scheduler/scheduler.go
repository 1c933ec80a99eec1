// Package scheduler runs registered callbacks on fixed intervals. It is the
// periodic-task collaborator used for light state refresh.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns one ticker goroutine per registered job. Jobs may be added
// before or after Start; jobs added while running start immediately.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	pending []job
}

type job struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers fn to run every interval. Intervals shorter than one
// millisecond are rejected with a warning.
func (s *Scheduler) Add(name string, interval time.Duration, fn func(context.Context)) {
	if interval < time.Millisecond {
		s.logger.Warn("scheduler: rejecting job with invalid interval", "name", name, "interval", interval)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := job{name: name, interval: interval, fn: fn}
	if s.running {
		s.launch(j)
		return
	}
	s.pending = append(s.pending, j)
}

// Start launches all pending jobs. The scheduler stops when ctx is canceled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, j := range s.pending {
		s.launch(j)
	}
	s.pending = nil
	s.logger.Info("scheduler: started")
}

// launch runs one job's ticker loop. Caller holds the mutex.
func (s *Scheduler) launch(j job) {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		s.logger.Debug("scheduler: job started", "name", j.name, "interval", j.interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("scheduler: job stopped", "name", j.name)
				return
			case <-ticker.C:
				j.fn(ctx)
			}
		}
	}()
}

// Stop cancels all jobs and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler: stopped")
}
