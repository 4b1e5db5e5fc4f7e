package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/observability"
	"github.com/studentdesk/backend/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval    = time.Minute
	defaultSweepBatchSize   = 100
	defaultSweepConcurrency = 20
)

// recordDispatcher is the slice of Dispatcher the sweeper needs.
type recordDispatcher interface {
	Dispatch(ctx context.Context, record *domain.EmailMessage) error
}

// Sweeper periodically re-drives undelivered records. It reads the oldest
// PENDING and FAILED rows and hands each to the dispatcher; records already at
// the retry ceiling come back in the batch but Dispatch skips them.
type Sweeper struct {
	emails      repository.EmailRepository
	dispatcher  recordDispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	batchSize   int
	concurrency int
	now         func() time.Time
}

func NewSweeper(
	emails repository.EmailRepository,
	dispatcher recordDispatcher,
	interval time.Duration,
	batchSize int,
	concurrency int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if emails == nil {
		return nil, fmt.Errorf("email repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		emails:      emails,
		dispatcher:  dispatcher,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start sweeps immediately, then on every interval tick until context
// cancellation. A failed sweep is logged and the loop keeps running.
func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initial sweep so a backlog left by a restart does not wait for the
	// first ticker edge.
	if _, err := s.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ProcessPending(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// ProcessPending runs one sweep and reports how many records were picked up.
// It is also the backing call for the manual process endpoint.
func (s *Sweeper) ProcessPending(ctx context.Context) (int, error) {
	sweepStart := s.now()

	batch, err := s.emails.FindByStatusIn(
		ctx,
		[]domain.EmailStatus{domain.EmailStatusPending, domain.EmailStatusFailed},
		s.batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch undelivered records: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range batch {
		record := batch[i]

		g.Go(func() error {
			if err := s.dispatcher.Dispatch(groupCtx, &record); err != nil {
				s.logger.Error("dispatch failed during sweep",
					zap.Int64("emailId", record.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	// Dispatch errors are logged per record; the group never carries one.
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.ObserveSweep(len(batch), s.now().Sub(sweepStart))
	}

	if len(batch) > 0 {
		s.logger.Info("sweep completed",
			zap.Int("batchSize", len(batch)),
			zap.Duration("duration", s.now().Sub(sweepStart)),
		)
	}

	return len(batch), nil
}
