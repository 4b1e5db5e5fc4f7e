package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/render"
	"github.com/studentdesk/backend/internal/report"
	"go.uber.org/zap"
)

const JobStudentReports = "daily-student-reports"

// ActivityBuilder produces the per-student delivery summaries the individual
// report job mails out.
type ActivityBuilder interface {
	BuildStudentActivity(ctx context.Context) ([]report.StudentActivity, error)
}

// reportEnqueuer is the producer-facing slice of EmailService.
type reportEnqueuer interface {
	Enqueue(ctx context.Context, recipient, subject, body string, kind domain.ContentKind) (*domain.EmailMessage, error)
}

// StudentReports emails every student their own daily summary. Unlike the
// admin reports, delivery goes through the persisted queue so the dispatcher
// retries and the sweeper picks up stragglers; the run log records that the
// fan-out was enqueued, not that every mail arrived.
type StudentReports struct {
	guard    *RunGuard
	activity ActivityBuilder
	renderer *render.Renderer
	sender   reportEnqueuer
	logger   *zap.Logger
}

func NewStudentReports(
	guard *RunGuard,
	activity ActivityBuilder,
	renderer *render.Renderer,
	sender reportEnqueuer,
	logger *zap.Logger,
) (*StudentReports, error) {
	if guard == nil {
		return nil, fmt.Errorf("run guard is required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity builder is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StudentReports{
		guard:    guard,
		activity: activity,
		renderer: renderer,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Run fans out one report email per student. A single student's failure is
// logged and skipped; only a failure to build the summaries fails the day.
func (s *StudentReports) Run(ctx context.Context, runDate time.Time) error {
	activity, buildErr := s.activity.BuildStudentActivity(ctx)
	if buildErr != nil {
		log, markErr := s.guard.MarkGenerated(ctx, JobStudentReports, runDate, "")
		if markErr != nil {
			s.logger.Error("failed to record generation failure",
				zap.String("job", JobStudentReports),
				zap.Error(markErr),
			)
			return buildErr
		}
		if err := s.guard.RecordFailure(ctx, log, buildErr); err != nil {
			s.logger.Error("failed to record run failure",
				zap.String("job", JobStudentReports),
				zap.Error(err),
			)
		}
		return buildErr
	}

	log, err := s.guard.MarkGenerated(ctx, JobStudentReports, runDate, "")
	if err != nil {
		return err
	}

	date := runDate.Format("2006-01-02")
	subject := fmt.Sprintf("Your daily report for %s", date)

	enqueued := 0
	for _, a := range activity {
		var lastDelivery string
		if a.LastSentAt != nil {
			lastDelivery = a.LastSentAt.UTC().Format("2006-01-02 15:04")
		}

		body, err := s.renderer.StudentReport(render.StudentReportData{
			StudentName:  a.Student.Name,
			ReportDate:   date,
			Delivered:    a.Delivered,
			Failed:       a.Failed,
			Pending:      a.Pending,
			LastDelivery: lastDelivery,
		})
		if err != nil {
			s.logger.Error("failed to render student report",
				zap.Int64("studentId", a.Student.ID),
				zap.Error(err),
			)
			continue
		}

		if _, err := s.sender.Enqueue(ctx, a.Student.Email, subject, body, domain.ContentKindHTML); err != nil {
			s.logger.Error("failed to enqueue student report",
				zap.Int64("studentId", a.Student.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if err := s.guard.RecordSuccess(ctx, log); err != nil {
		return err
	}

	s.logger.Info("individual student reports enqueued",
		zap.String("runDate", date),
		zap.Int("students", len(activity)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}
