// Package scheduler runs named jobs on cron specs with seconds precision.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/observability"
	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/worker"
)

const (
	logKeyJob = "job"

	statusOK    = "ok"
	statusError = "error"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Runner wraps a cron instance. Overlapping runs of the same job are skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *zerolog.Logger
	baseCtx context.Context
}

// New creates a runner evaluating specs in loc.
func New(baseCtx context.Context, loc *time.Location, logger *zerolog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}

	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under name on spec.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		r.run(name, job)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	r.logger.Info().Str(logKeyJob, name).Str("spec", spec).Msg("scheduled job")

	return id, nil
}

func (r *Runner) run(name string, job Job) {
	defer worker.RecoverPanic(r.logger, name)

	start := time.Now()

	if err := job(r.baseCtx); err != nil {
		observability.SchedulerJobs.WithLabelValues(name, statusError).Inc()
		r.logger.Error().Err(err).Str(logKeyJob, name).Dur("elapsed", time.Since(start)).Msg("scheduled job failed")

		return
	}

	observability.SchedulerJobs.WithLabelValues(name, statusOK).Inc()
	r.logger.Info().Str(logKeyJob, name).Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
}

// Start begins dispatching jobs in the background.
func (r *Runner) Start() {
	r.logger.Info().Int("jobs", len(r.cron.Entries())).Msg("cron started")
	r.cron.Start()
}

// Stop halts dispatch and waits for running jobs or ctx, whichever comes first.
func (r *Runner) Stop(ctx context.Context) {
	stopped := r.cron.Stop()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	r.logger.Info().Msg("cron stopped")
}

// Next reports the next activation time of an entry.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
