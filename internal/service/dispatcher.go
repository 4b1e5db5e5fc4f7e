package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentdesk/backend/internal/alert"
	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/mailer"
	"github.com/studentdesk/backend/internal/observability"
	"github.com/studentdesk/backend/internal/ratelimit"
	"github.com/studentdesk/backend/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxRetries      = 3
	minDispatchWorkers     = 1
	defaultDispatchWorkers = 8
	dispatchQueueFactor    = 16
	smtpRateScope          = "smtp"
)

// Dispatcher performs single delivery attempts against persisted email
// records and owns the async worker pool that producers hand new records to.
// Transport failures never leave Dispatch; they land on the record as a
// FAILED status with the error summary, where the sweeper can find them.
type Dispatcher struct {
	emails      repository.EmailRepository
	mailer      mailer.Mailer
	rateLimiter ratelimit.RateLimiter
	alerts      alert.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxRetries  int
	workers     int
	jobs        chan int64
	now         func() time.Time
}

func NewDispatcher(
	emails repository.EmailRepository,
	m mailer.Mailer,
	rateLimiter ratelimit.RateLimiter,
	alerts alert.Notifier,
	workers int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if emails == nil {
		return nil, fmt.Errorf("email repository is required")
	}
	if m == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if workers < minDispatchWorkers {
		workers = defaultDispatchWorkers
	}
	if alerts == nil {
		alerts = alert.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		emails:      emails,
		mailer:      m,
		rateLimiter: rateLimiter,
		alerts:      alerts,
		logger:      logger,
		maxRetries:  defaultMaxRetries,
		workers:     workers,
		jobs:        make(chan int64, workers*dispatchQueueFactor),
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Submit hands a freshly enqueued record to the worker pool without blocking
// the producer. A full queue is not an error: the record stays PENDING and the
// next sweep picks it up.
func (d *Dispatcher) Submit(id int64) {
	select {
	case d.jobs <- id:
	default:
		d.logger.Warn("dispatch queue full, record left for sweeper", zap.Int64("emailId", id))
	}
}

// Start runs the worker pool until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		workerID := i + 1

		g.Go(func() error {
			d.logger.Info("dispatch worker started", zap.Int("workerId", workerID))

			for {
				select {
				case <-groupCtx.Done():
					d.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
					return nil
				case id := <-d.jobs:
					d.processSubmitted(groupCtx, id)
				}
			}
		})
	}

	return g.Wait()
}

func (d *Dispatcher) processSubmitted(ctx context.Context, id int64) {
	record, err := d.emails.GetByID(ctx, id)
	if err != nil {
		d.logger.Warn("submitted record could not be loaded, leaving it for the sweeper",
			zap.Int64("emailId", id),
			zap.Error(err),
		)
		return
	}

	if err := d.Dispatch(ctx, record); err != nil {
		d.logger.Error("dispatch of submitted record failed",
			zap.Int64("emailId", id),
			zap.Error(err),
		)
	}
}

// Dispatch performs exactly one delivery attempt. Terminal records (SENT, or
// FAILED at the retry ceiling) are skipped untouched. The returned error
// covers persistence problems only; a failed SMTP attempt is recorded on the
// row and reported as nil.
func (d *Dispatcher) Dispatch(ctx context.Context, record *domain.EmailMessage) error {
	if record == nil {
		return nil
	}
	if record.IsTerminal(d.maxRetries) {
		return nil
	}

	if d.metrics != nil {
		d.metrics.IncDispatchInflight()
		defer d.metrics.DecDispatchInflight()
	}

	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, smtpRateScope); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	attempt := record.RetryCount + 1
	out := mailer.Outbound{
		Recipient: record.Recipient,
		Subject:   record.Subject,
		Body:      record.Body,
		HTML:      record.Kind == domain.ContentKindHTML,
	}

	sendStart := d.now()
	sendErr := d.mailer.Send(ctx, out)
	if d.metrics != nil {
		d.metrics.ObserveEmailSendDuration(d.now().Sub(sendStart))
	}

	attemptedAt := d.now().UTC()
	record.RetryCount = attempt
	record.LastAttemptAt = &attemptedAt

	if sendErr == nil {
		record.Status = domain.EmailStatusSent
		record.SentAt = &attemptedAt
		record.LastError = nil

		if err := d.emails.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to persist sent record: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncEmailSent()
		}
		return nil
	}

	record.Status = domain.EmailStatusFailed
	summary := mailer.Summary(sendErr)
	record.LastError = &summary

	if err := d.emails.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to persist failed record: %w", err)
	}

	reason := "permanent_error"
	if mailer.IsTransient(sendErr) {
		reason = "transient_error"
	}
	if d.metrics != nil {
		d.metrics.IncEmailFailed(reason)
	}

	d.logger.Warn("delivery attempt failed",
		zap.Int64("emailId", record.ID),
		zap.Int("attempt", attempt),
		zap.String("reason", reason),
		zap.Error(sendErr),
	)

	if attempt >= d.maxRetries {
		d.alerts.RetryExhausted(ctx, record.ID, record.Recipient, summary)
	}

	return nil
}
