package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/repository"
	"go.uber.org/zap"
)

const cutoffHour = 23

// TriggerPath labels which rule fired a daily job, for logs and metrics.
type TriggerPath string

const (
	TriggerStartup TriggerPath = "startup"
	TriggerExact   TriggerPath = "exact"
	TriggerCatchUp TriggerPath = "catchup"
	TriggerCutoff  TriggerPath = "cutoff"
	TriggerManual  TriggerPath = "manual"
)

// RunGuard decides whether a daily job may fire and records run outcomes.
// The SENT run-log row is the durable once-per-day latch; the in-flight set
// closes the window where two evaluations of the same tick would both pass
// the database check before either writes its row.
type RunGuard struct {
	runLogs repository.RunLogRepository
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewRunGuard(runLogs repository.RunLogRepository, logger *zap.Logger) (*RunGuard, error) {
	if runLogs == nil {
		return nil, fmt.Errorf("run log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RunGuard{
		runLogs:  runLogs,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}, nil
}

// ShouldRun evaluates every trigger rule for one job at one instant. It
// returns false whenever the job already completed today; otherwise the first
// matching rule wins:
//
//   - startup: process start after the scheduled time, run was missed
//   - exact: the current minute is the scheduled minute
//   - catchup: past the scheduled time, before the 23:00 cutoff
//   - cutoff: 23:00 or later, retried every tick until midnight
//
// Jobs without catch-up semantics only fire on their exact minute.
func (g *RunGuard) ShouldRun(
	ctx context.Context,
	jobName string,
	hour, minute int,
	catchUp bool,
	startup bool,
	now time.Time,
) (bool, TriggerPath, error) {
	sent, err := g.AlreadySent(ctx, jobName, now)
	if err != nil {
		return false, "", err
	}
	if sent {
		return false, "", nil
	}

	exact := now.Hour() == hour && now.Minute() == minute
	pastScheduled := now.Hour() > hour || (now.Hour() == hour && now.Minute() > minute)
	beforeCutoff := now.Hour() < cutoffHour
	inCutoffWindow := now.Hour() >= cutoffHour

	if startup && (exact || pastScheduled) {
		return true, TriggerStartup, nil
	}
	if exact {
		return true, TriggerExact, nil
	}
	if !catchUp {
		return false, "", nil
	}
	if pastScheduled && beforeCutoff {
		return true, TriggerCatchUp, nil
	}
	if inCutoffWindow {
		return true, TriggerCutoff, nil
	}

	return false, "", nil
}

// AlreadySent reports whether the job has a SENT run-log row for now's date.
func (g *RunGuard) AlreadySent(ctx context.Context, jobName string, now time.Time) (bool, error) {
	log, err := g.runLogs.FindForDate(ctx, jobName, domain.DateOnly(now))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load run log: %w", err)
	}

	return log.Status == domain.RunStatusSent, nil
}

// Begin claims the in-flight slot for (job, date). A false return means
// another goroutine is already running the job for that date.
func (g *RunGuard) Begin(jobName string, runDate time.Time) bool {
	key := inFlightKey(jobName, runDate)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[key]; ok {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *RunGuard) Finish(jobName string, runDate time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, inFlightKey(jobName, runDate))
}

// MarkGenerated writes the GENERATED row for today's run, reusing an earlier
// failed row for the same date so one date keeps one row per job.
func (g *RunGuard) MarkGenerated(ctx context.Context, jobName string, runDate time.Time, fileName string) (*domain.ReportRunLog, error) {
	log, err := g.runLogs.FindForDate(ctx, jobName, domain.DateOnly(runDate))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to load run log: %w", err)
		}
		log = &domain.ReportRunLog{
			RunDate: domain.DateOnly(runDate),
			JobName: jobName,
		}
	}

	log.FileName = fileName
	log.Status = domain.RunStatusGenerated
	log.GeneratedAt = g.now().UTC()
	log.SentAt = nil
	log.ErrorMessage = nil

	if err := g.runLogs.Save(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to save run log: %w", err)
	}

	return log, nil
}

// RecordSuccess flips the run log to SENT, latching the job for the day.
func (g *RunGuard) RecordSuccess(ctx context.Context, log *domain.ReportRunLog) error {
	sentAt := g.now().UTC()
	log.Status = domain.RunStatusSent
	log.SentAt = &sentAt
	log.ErrorMessage = nil

	if err := g.runLogs.Save(ctx, log); err != nil {
		return fmt.Errorf("failed to record run success: %w", err)
	}
	return nil
}

// RecordFailure marks the run FAILED so a later trigger path retries it.
func (g *RunGuard) RecordFailure(ctx context.Context, log *domain.ReportRunLog, cause error) error {
	log.Status = domain.RunStatusFailed
	if cause != nil {
		msg := cause.Error()
		log.ErrorMessage = &msg
	}

	if err := g.runLogs.Save(ctx, log); err != nil {
		return fmt.Errorf("failed to record run failure: %w", err)
	}
	return nil
}

func inFlightKey(jobName string, runDate time.Time) string {
	return fmt.Sprintf("%s:%s", jobName, domain.DateOnly(runDate).Format("2006-01-02"))
}
