package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hrmprivacy/internal/requestctx"
)

const (
	JobRetentionSweep   = "retention_sweep"
	JobExportCleanup    = "export_cleanup"
	JobErasureExecute   = "erasure_execute"
	JobErasureResume    = "erasure_resume"
	JobExportProcess    = "export_process"
	JobRetentionExecute = "retention_execute"
)

const defaultQueueSize = 128

// Service runs background work on a single worker goroutine. Work arrives
// either from request handlers through Enqueue or from cron schedules.
type Service struct {
	queue  chan job
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

type job struct {
	Type string
	Key  string
	Run  func(context.Context) (any, error)
}

func New() *Service {
	return newService(defaultQueueSize)
}

func newService(size int) *Service {
	return &Service{
		queue:   make(chan job, size),
		cron:    cron.New(),
		logger:  slog.Default().With("component", "privacy.jobs"),
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule enqueues run on the standard cron spec. An empty or "off" spec
// leaves the job unscheduled.
func (s *Service) Schedule(jobType, spec string, run func(context.Context) (any, error)) error {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "off") {
		s.logger.Info("schedule disabled", "jobType", jobType)
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", spec, jobType, err)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.Enqueue(jobType, "cron", run)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobType, err)
	}
	s.mu.Lock()
	s.entries[jobType] = id
	s.mu.Unlock()
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.worker(ctx)
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the schedules and waits for a cron callback in flight.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// Enqueue reports false when the queue is full and the job was dropped.
func (s *Service) Enqueue(jobType, key string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Key: key, Run: run}:
		return true
	default:
		s.logger.Warn("job queue full", "jobType", jobType, "key", key)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, key string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Key: key, Run: run})
}

// NextRun returns when a scheduled job fires next, or nil when it is not
// scheduled or the scheduler is stopped.
func (s *Service) NextRun(jobType string) *time.Time {
	s.mu.Lock()
	id, ok := s.entries[jobType]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.Warn("job run failed", "jobType", j.Type, "key", j.Key, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (details any, err error) {
	if requestctx.GetActorID(ctx) == "" {
		ctx = requestctx.WithActorID(ctx, "job:"+j.Type)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Type, r)
		}
		s.logger.Info("job finished",
			"jobType", j.Type,
			"key", j.Key,
			"durationMs", time.Since(start).Milliseconds(),
			"failed", err != nil,
		)
	}()
	return j.Run(ctx)
}
