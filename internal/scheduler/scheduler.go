package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/repository"
)

// Handler processes one claimed job to a terminal outcome. The returned
// message becomes the job's completion message.
type Handler interface {
	Process(ctx context.Context, job *entity.ExtractionJob) (string, error)
}

// Aggregator republishes derived project status after a terminal
// transition.
type Aggregator interface {
	RecomputeProject(ctx context.Context, projectID uuid.UUID) error
}

type Config struct {
	MaxConcurrency int64         // worker ceiling. Default 12.
	PollInterval   time.Duration // claim tick. Default 2s.
	StaleAfter     time.Duration // lease before a PROCESSING job is re-queued. Default 10m.
	SweepInterval  time.Duration // how often stale jobs are swept. Default 1m.
}

func (c *Config) setDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 12
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Scheduler is a bounded-concurrency polling loop. On every tick it
// atomically claims queued jobs until the ceiling is reached, dispatches
// each asynchronously, and releases the slot when the handler returns,
// whether by success, failure, or panic. It is an injected object rather
// than a process-global, so tests can run isolated instances.
type Scheduler struct {
	jobs    repository.JobStore
	handler Handler
	agg     Aggregator
	cfg     Config
	logger  *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func New(jobs repository.JobStore, handler Handler, agg Aggregator, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()
	return &Scheduler{
		jobs:     jobs,
		handler:  handler,
		agg:      agg,
		cfg:      cfg,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrency),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting",
		"max_concurrency", s.cfg.MaxConcurrency,
		"poll_interval", s.cfg.PollInterval.String())

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()

	s.fill(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down, waiting for in-flight jobs")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.fill(ctx)
		case <-sweep.C:
			if _, err := s.jobs.ResetStale(ctx, s.cfg.StaleAfter); err != nil {
				s.logger.Error("stale job sweep failed", "error", err)
			}
		}
	}
}

// fill claims jobs while worker slots are free. The claim is the single
// synchronization point: exactly one scheduler instance wins each job.
func (s *Scheduler) fill(ctx context.Context) {
	for {
		if !s.sem.TryAcquire(1) {
			return
		}
		job, err := s.jobs.ClaimNextQueued(ctx)
		if err != nil {
			s.sem.Release(1)
			s.logger.Error("claim failed", "error", err)
			return
		}
		if job == nil {
			s.sem.Release(1)
			return
		}

		s.track(job.ID)
		s.wg.Add(1)
		go s.run(ctx, job)
	}
}

func (s *Scheduler) run(ctx context.Context, job *entity.ExtractionJob) {
	defer s.wg.Done()
	defer s.sem.Release(1)
	defer s.untrack(job.ID)

	// Terminal writes must land even when ctx is already cancelled during
	// shutdown, otherwise the job is orphaned in PROCESSING.
	finishCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "job_id", job.ID, "panic", r)
			s.finish(finishCtx, job, "", fmt.Errorf("handler panic: %v", r))
		}
	}()

	s.logger.Info("processing job", "job_id", job.ID, "project_id", job.ProjectID, "file_id", job.FileID)
	msg, err := s.handler.Process(ctx, job)
	s.finish(finishCtx, job, msg, err)
}

func (s *Scheduler) finish(ctx context.Context, job *entity.ExtractionJob, msg string, err error) {
	if err != nil {
		if ferr := s.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", ferr)
		}
	} else {
		if cerr := s.jobs.Complete(ctx, job.ID, msg); cerr != nil {
			s.logger.Error("failed to mark job complete", "job_id", job.ID, "error", cerr)
		}
	}
	if s.agg != nil {
		if aerr := s.agg.RecomputeProject(ctx, job.ProjectID); aerr != nil {
			s.logger.Error("project status recompute failed", "project_id", job.ProjectID, "error", aerr)
		}
	}
}

func (s *Scheduler) track(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = struct{}{}
}

func (s *Scheduler) untrack(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// InFlight returns the number of jobs currently being processed.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
