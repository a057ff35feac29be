package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Scheduler executes a standing run request on a cron schedule and
// publishes each report.
type Scheduler struct {
	spec     string
	template domain.RunRequest
	executor Executor
	loader   BatchLoader
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewScheduler validates spec, a standard five-field cron expression.
func NewScheduler(spec string, template domain.RunRequest, x Executor, l BatchLoader, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		template: template,
		executor: x,
		loader:   l,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a run in progress to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}
	s.logger.Info("scheduler started", "schedule", s.spec, "region", s.template.Region.String())
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce executes the template under a fresh run ID and publishes the
// report, including failure reports for runs that never started.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	req := s.template
	req.ID = ""
	req = req.WithID()

	report, err := s.executor.Execute(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("scheduled run failed before execution", "run_id", req.ID, "error", err)
		report = failureReport(req, err)
	}
	if err := s.loader.LoadBatch(ctx, []domain.Report{*report}); err != nil {
		return fmt.Errorf("publish report %s: %w", req.ID, err)
	}
	return nil
}
