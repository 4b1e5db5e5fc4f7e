package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/observability"
	"github.com/studentdesk/backend/internal/render"
	"github.com/studentdesk/backend/internal/repository"
	"go.uber.org/zap"
)

// submitter is the producer-facing slice of Dispatcher.
type submitter interface {
	Submit(id int64)
}

// EmailService is the producer side of the delivery engine: it persists
// records as PENDING and hands them to the dispatcher for an immediate
// attempt. Whatever that attempt does, the record is already durable and the
// sweeper will finish the job.
type EmailService struct {
	emails     repository.EmailRepository
	students   repository.StudentRepository
	templates  repository.BroadcastTemplateRepository
	renderer   *render.Renderer
	dispatcher submitter
	logger     *zap.Logger
	now        func() time.Time
}

func NewEmailService(
	emails repository.EmailRepository,
	students repository.StudentRepository,
	templates repository.BroadcastTemplateRepository,
	renderer *render.Renderer,
	dispatcher submitter,
	logger *zap.Logger,
) (*EmailService, error) {
	if emails == nil {
		return nil, fmt.Errorf("email repository is required")
	}
	if students == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("broadcast template repository is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailService{
		emails:     emails,
		students:   students,
		templates:  templates,
		renderer:   renderer,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Enqueue validates and persists one outbound email, then submits it for an
// immediate delivery attempt. Enqueue succeeds as soon as the record is
// durable; delivery outcome is tracked on the record.
func (s *EmailService) Enqueue(ctx context.Context, recipient, subject, body string, kind domain.ContentKind) (*domain.EmailMessage, error) {
	if kind == "" {
		kind = domain.ContentKindPlain
	}

	record := &domain.EmailMessage{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Kind:      kind,
		Status:    domain.EmailStatusPending,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.emails.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist email record: %w", err)
	}

	s.dispatcher.Submit(record.ID)
	return record, nil
}

// Broadcast persists the announcement as the latest template, then enqueues
// one personalized email per student with a deliverable address. Students
// whose enqueue fails are logged and skipped; the broadcast continues.
func (s *EmailService) Broadcast(ctx context.Context, subject, message string) (int, error) {
	tmpl := &domain.BroadcastTemplate{
		Subject: subject,
		Message: message,
	}
	if err := s.templates.Save(ctx, tmpl); err != nil {
		return 0, fmt.Errorf("failed to persist broadcast template: %w", err)
	}

	return s.fanOut(ctx, subject, message)
}

// RunDailyBroadcast re-sends the latest announcement to all students. It
// backs the end-of-day broadcast job; with no template saved yet there is
// nothing to send and the run succeeds empty.
func (s *EmailService) RunDailyBroadcast(ctx context.Context, runDate time.Time) error {
	tmpl, err := s.templates.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("no broadcast template saved, skipping daily broadcast")
			return nil
		}
		return fmt.Errorf("failed to load latest broadcast template: %w", err)
	}

	count, err := s.fanOut(ctx, tmpl.Subject, tmpl.Message)
	if err != nil {
		return err
	}

	s.logger.Info("daily broadcast enqueued",
		zap.String("runDate", runDate.Format("2006-01-02")),
		zap.Int("recipients", count),
	)
	return nil
}

func (s *EmailService) fanOut(ctx context.Context, subject, message string) (int, error) {
	students, err := s.students.ListWithEmail(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list broadcast recipients: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx)

	// Correlates all log lines of one fan-out run.
	batchID := uuid.NewString()
	sentDate := s.now().UTC().Format("2006-01-02")
	enqueued := 0
	for i := range students {
		student := students[i]

		body, err := s.renderer.Broadcast(render.BroadcastData{
			StudentName: student.Name,
			Subject:     subject,
			Message:     message,
			SentDate:    sentDate,
		})
		if err != nil {
			return enqueued, fmt.Errorf("failed to render broadcast body: %w", err)
		}

		if _, err := s.Enqueue(ctx, student.Email, subject, body, domain.ContentKindHTML); err != nil {
			logger.Error("failed to enqueue broadcast email",
				zap.String("batchId", batchID),
				zap.Int64("studentId", student.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	logger.Info("broadcast fan-out completed",
		zap.String("batchId", batchID),
		zap.Int("recipients", len(students)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued, nil
}
