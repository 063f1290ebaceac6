package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// entry pairs a registered job with the lock that keeps its ticks from
// overlapping.
type entry struct {
	job  Job
	busy sync.Mutex
}

// Scheduler drives the registered maintenance jobs on their cron
// expressions. A tick that fires while the previous run of the same job is
// still going is skipped, not queued.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	runner  *cron.Cron
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Job names are unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.entries[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Start begins executing registered jobs on their schedules. Returns an
// error if any job has an invalid cron expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.runner = cron.New(cron.WithParser(parser))

	for _, name := range s.order {
		e := s.entries[name]
		if _, err := s.runner.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.runner.Start()
	s.logger.Info("maintenance scheduler started", "jobs", len(s.order))
	return nil
}

// tick runs one firing of a job, skipping it when the previous firing is
// still in flight. TryLock keeps the check and the acquire atomic.
func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if !e.busy.TryLock() {
		s.logger.Warn("maintenance job overlapped, tick skipped", "job", e.job.Name())
		return
	}
	defer e.busy.Unlock()

	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("maintenance job failed", "job", e.job.Name(), "error", err)
	}
}

// Stop shuts the scheduler down, waiting for in-flight jobs to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.runner != nil {
		<-s.runner.Stop().Done()
		s.logger.Info("maintenance scheduler stopped")
	}
	return nil
}
