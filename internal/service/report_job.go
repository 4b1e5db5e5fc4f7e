package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/mailer"
	"github.com/studentdesk/backend/internal/render"
	"github.com/studentdesk/backend/internal/repository"
	"go.uber.org/zap"
)

const (
	JobProgressReport  = "daily-progress-report"
	JobAnalyticsReport = "daily-analytics-report"
	JobDailyBroadcast  = "daily-broadcast"
)

// ReportBuilder produces one report's file name and CSV payload.
type ReportBuilder interface {
	BuildProgressReport(ctx context.Context) (string, []byte, error)
	BuildAnalyticsReport(ctx context.Context) (string, []byte, error)
}

// ReportJobs builds the daily CSV reports and emails them to the admin
// address, recording each run through the guard. Report mails are sent
// directly rather than through the delivery queue so the run-log status
// reflects actual delivery of the attachment.
type ReportJobs struct {
	guard         *RunGuard
	generator     ReportBuilder
	renderer      *render.Renderer
	mailer        mailer.Mailer
	notifications repository.NotificationRepository
	adminEmail    string
	logger        *zap.Logger
	now           func() time.Time
	studentRun    func(ctx context.Context, runDate time.Time) error
}

func NewReportJobs(
	guard *RunGuard,
	generator ReportBuilder,
	renderer *render.Renderer,
	m mailer.Mailer,
	notifications repository.NotificationRepository,
	adminEmail string,
	logger *zap.Logger,
) (*ReportJobs, error) {
	if guard == nil {
		return nil, fmt.Errorf("run guard is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("report generator is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if m == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if adminEmail == "" {
		return nil, fmt.Errorf("admin email is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportJobs{
		guard:         guard,
		generator:     generator,
		renderer:      renderer,
		mailer:        m,
		notifications: notifications,
		adminEmail:    adminEmail,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// SetStudentReportRunner makes the per-student report job reachable from
// RunManually.
func (j *ReportJobs) SetStudentReportRunner(run func(ctx context.Context, runDate time.Time) error) {
	j.studentRun = run
}

func (j *ReportJobs) RunProgress(ctx context.Context, runDate time.Time) error {
	return j.run(ctx, runDate, JobProgressReport, "daily progress report", j.generator.BuildProgressReport)
}

func (j *ReportJobs) RunAnalytics(ctx context.Context, runDate time.Time) error {
	return j.run(ctx, runDate, JobAnalyticsReport, "daily analytics report", j.generator.BuildAnalyticsReport)
}

// RunManually fires one report job outside the trigger loop. It skips the
// already-SENT check on purpose: an operator re-running a delivered report
// gets a fresh run that overwrites the day's log row.
func (j *ReportJobs) RunManually(ctx context.Context, jobName string) (*domain.ReportRunLog, error) {
	var runFn func(ctx context.Context, runDate time.Time) error
	switch jobName {
	case JobProgressReport:
		runFn = j.RunProgress
	case JobAnalyticsReport:
		runFn = j.RunAnalytics
	case JobStudentReports:
		if j.studentRun == nil {
			return nil, fmt.Errorf("%w: unknown report job %q", domain.ErrValidation, jobName)
		}
		runFn = j.studentRun
	default:
		return nil, fmt.Errorf("%w: unknown report job %q", domain.ErrValidation, jobName)
	}

	now := j.now()
	runDate := domain.DateOnly(now)

	if !j.guard.Begin(jobName, runDate) {
		return nil, fmt.Errorf("%w: %s is already running", domain.ErrConflict, jobName)
	}
	defer j.guard.Finish(jobName, runDate)

	j.logger.Info("manual report run started", zap.String("job", jobName))
	runErr := runFn(ctx, runDate)

	log, err := j.guard.runLogs.FindForDate(ctx, jobName, runDate)
	if err != nil {
		if runErr != nil {
			return nil, runErr
		}
		return nil, fmt.Errorf("failed to load run log after manual run: %w", err)
	}

	return log, runErr
}

func (j *ReportJobs) run(
	ctx context.Context,
	runDate time.Time,
	jobName string,
	displayName string,
	build func(ctx context.Context) (string, []byte, error),
) error {
	fileName, content, buildErr := build(ctx)
	if buildErr != nil {
		log, markErr := j.guard.MarkGenerated(ctx, jobName, runDate, "")
		if markErr != nil {
			j.logger.Error("failed to record generation failure",
				zap.String("job", jobName),
				zap.Error(markErr),
			)
			return buildErr
		}
		if err := j.guard.RecordFailure(ctx, log, buildErr); err != nil {
			j.logger.Error("failed to record run failure",
				zap.String("job", jobName),
				zap.Error(err),
			)
		}
		return buildErr
	}

	log, err := j.guard.MarkGenerated(ctx, jobName, runDate, fileName)
	if err != nil {
		return err
	}

	body, err := j.renderer.Report(render.ReportData{
		ReportName: displayName,
		RunDate:    runDate.Format("2006-01-02"),
		FileName:   fileName,
	})
	if err != nil {
		return j.failRun(ctx, log, err)
	}

	out := mailer.Outbound{
		Recipient: j.adminEmail,
		Subject:   fmt.Sprintf("%s for %s", displayName, runDate.Format("2006-01-02")),
		Body:      body,
		HTML:      true,
		Attachments: []mailer.Attachment{
			{FileName: fileName, Content: content},
		},
	}
	if err := j.mailer.Send(ctx, out); err != nil {
		return j.failRun(ctx, log, err)
	}

	if err := j.guard.RecordSuccess(ctx, log); err != nil {
		return err
	}

	notification := &domain.Notification{
		Title:   fmt.Sprintf("%s delivered", displayName),
		Message: fmt.Sprintf("%s was emailed to %s", fileName, j.adminEmail),
	}
	if err := j.notifications.Create(ctx, notification); err != nil {
		// The run itself succeeded; the dashboard entry is best effort.
		j.logger.Warn("failed to write in-app notification",
			zap.String("job", jobName),
			zap.Error(err),
		)
	}

	j.logger.Info("daily report delivered",
		zap.String("job", jobName),
		zap.String("fileName", fileName),
	)
	return nil
}

func (j *ReportJobs) failRun(ctx context.Context, log *domain.ReportRunLog, cause error) error {
	if err := j.guard.RecordFailure(ctx, log, cause); err != nil {
		j.logger.Error("failed to record run failure",
			zap.String("job", log.JobName),
			zap.Error(err),
		)
	}
	return cause
}
