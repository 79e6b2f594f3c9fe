package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Job is one scheduled pass.
type Job interface {
	Run(ctx context.Context, now time.Time) (*RunReport, error)
}

// Scheduler triggers a Job on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	job      Job
	spec     string
	loc      *time.Location
	logger   *slog.Logger
	afterRun func(*RunReport, error)
}

func NewScheduler(job Job, spec string, loc *time.Location, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{job: job, spec: spec, loc: loc, logger: logger}
}

// OnRun registers a hook called after every pass, used for pushing metrics.
func (s *Scheduler) OnRun(fn func(*RunReport, error)) {
	s.afterRun = fn
}

// Run executes one pass immediately, then on every schedule tick until ctx
// is cancelled. In-flight passes are waited for before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.runOnce(ctx)

	s.logger.Info("scheduler: started", "schedule", s.spec)
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler: shutting down")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.job.Run(ctx, time.Now())
	if err != nil {
		s.logger.Error("scheduler: run failed", "err", err)
	}
	if s.afterRun != nil {
		s.afterRun(report, err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
