package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentdesk/backend/internal/alert"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/observability"
	"go.uber.org/zap"
)

const defaultTickInterval = time.Minute

// Job is one daily task evaluated by the trigger loop. Schedule is consulted
// on every tick so an operator schedule change applies without a restart.
type Job struct {
	Name     string
	Schedule func(ctx context.Context) (hour, minute int, err error)
	CatchUp  bool
	Run      func(ctx context.Context, runDate time.Time) error
}

// FixedSchedule returns a Schedule func for jobs pinned to one time of day.
func FixedSchedule(hour, minute int) func(ctx context.Context) (int, int, error) {
	return func(ctx context.Context) (int, int, error) {
		return hour, minute, nil
	}
}

// Registry owns every daily job's trigger definition and drives them all
// from a single per-minute tick loop, plus one catch-up evaluation at
// process start.
type Registry struct {
	guard    *RunGuard
	jobs     []Job
	logger   *zap.Logger
	metrics  *observability.Metrics
	alerts   alert.Notifier
	interval time.Duration
	now      func() time.Time
}

func NewRegistry(guard *RunGuard, alerts alert.Notifier, logger *zap.Logger) (*Registry, error) {
	if guard == nil {
		return nil, fmt.Errorf("run guard is required")
	}
	if alerts == nil {
		alerts = alert.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		guard:    guard,
		alerts:   alerts,
		logger:   logger,
		interval: defaultTickInterval,
		now:      time.Now,
	}, nil
}

func (r *Registry) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

func (r *Registry) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Schedule == nil {
		return fmt.Errorf("job %s has no schedule", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}

	r.jobs = append(r.jobs, job)
	return nil
}

// Start evaluates all jobs once for missed runs, then on every tick until
// context cancellation. Evaluation errors are logged and never stop the loop.
func (r *Registry) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.evaluate(ctx, true)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.evaluate(ctx, false)
		}
	}
}

// evaluate runs jobs synchronously on the tick goroutine, so a slow run can
// skip other jobs' exact-minute ticks; the catch-up and cutoff paths pick
// those up on a later tick.
func (r *Registry) evaluate(ctx context.Context, startup bool) {
	now := r.now()

	for _, job := range r.jobs {
		hour, minute, err := job.Schedule(ctx)
		if err != nil {
			r.logger.Error("failed to resolve job schedule",
				zap.String("job", job.Name),
				zap.Error(err),
			)
			continue
		}

		shouldRun, path, err := r.guard.ShouldRun(ctx, job.Name, hour, minute, job.CatchUp, startup, now)
		if err != nil {
			r.logger.Error("trigger evaluation failed",
				zap.String("job", job.Name),
				zap.Error(err),
			)
			continue
		}
		if !shouldRun {
			continue
		}

		r.fire(ctx, job, now, path)
	}
}

func (r *Registry) fire(ctx context.Context, job Job, now time.Time, path TriggerPath) {
	runDate := domain.DateOnly(now)

	if !r.guard.Begin(job.Name, runDate) {
		r.logger.Info("job already in flight, skipping",
			zap.String("job", job.Name),
			zap.String("path", string(path)),
		)
		return
	}
	defer r.guard.Finish(job.Name, runDate)

	// The ShouldRun check and this point are separated by Begin; re-check so
	// a run that completed in between is not repeated.
	sent, err := r.guard.AlreadySent(ctx, job.Name, now)
	if err != nil {
		r.logger.Error("pre-dispatch recheck failed",
			zap.String("job", job.Name),
			zap.Error(err),
		)
		return
	}
	if sent {
		return
	}

	r.logger.Info("daily job triggered",
		zap.String("job", job.Name),
		zap.String("path", string(path)),
	)
	if r.metrics != nil {
		r.metrics.IncDailyTrigger(job.Name, string(path))
	}

	if err := job.Run(ctx, runDate); err != nil {
		r.logger.Error("daily job failed",
			zap.String("job", job.Name),
			zap.String("path", string(path)),
			zap.Error(err),
		)
		if r.metrics != nil {
			r.metrics.IncDailyRun(job.Name, "error")
		}
		if path == TriggerCutoff {
			// No later trigger path remains today.
			r.alerts.ReportFailed(ctx, job.Name, runDate, err.Error())
		}
		return
	}

	if r.metrics != nil {
		r.metrics.IncDailyRun(job.Name, "ok")
	}
}
