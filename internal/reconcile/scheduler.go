package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Status describes the most recent scheduled or manual run.
type Status struct {
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitzero"`
	Committed int       `json:"committed"`
	Rejected  int       `json:"rejected"`
	Remaining int       `json:"remaining"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitzero"`
}

// Scheduler triggers a Reconciler at startup and on a cron schedule.
type Scheduler struct {
	reconciler *Reconciler
	schedule   string
	cron       *cron.Cron
	entryID    cron.EntryID
	logger     *slog.Logger

	mu      sync.RWMutex
	status  Status
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler validates schedule and prepares a scheduler. An empty
// schedule means startup and manual runs only.
func NewScheduler(r *Reconciler, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
		}
	}
	return &Scheduler{
		reconciler: r,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     logger,
	}, nil
}

// Start runs one reconciliation in the background and registers the
// periodic job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sync scheduler is already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	if s.schedule != "" {
		id, err := s.cron.AddFunc(s.schedule, func() {
			s.RunNow(ctx)
		})
		if err != nil {
			s.cancel()
			return fmt.Errorf("scheduling sync: %w", err)
		}
		s.entryID = id
		s.cron.Start()
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunNow(ctx)
	}()

	s.logger.Info("sync scheduler started", "schedule", s.schedule)
	return nil
}

// Stop cancels pending work and waits up to 30s for a running
// reconciliation to reach an entry boundary.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
	case <-time.After(30 * time.Second):
		s.logger.Warn("sync scheduler stop timed out")
	}
}

// RunNow reconciles immediately and records the outcome. Concurrent calls
// queue up behind the reconciler's lock.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	report, err := s.reconciler.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{
		LastRun:   time.Now().UTC(),
		Committed: len(report.Committed),
		Rejected:  len(report.Rejected),
		Remaining: report.Remaining,
	}
	if err != nil {
		s.status.LastError = err.Error()
		s.logger.Warn("sync run failed", "error", err, "remaining", report.Remaining)
	} else if len(report.Committed)+len(report.Rejected) > 0 {
		s.logger.Info("sync run finished",
			"committed", len(report.Committed), "rejected", len(report.Rejected))
	}
	return report, err
}

// Status returns the outcome of the last run and the next scheduled time.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if s.entryID != 0 {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	return st
}
