package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/mailer"
	"go.uber.org/zap"
)

type fakeDispatch struct {
	mu         sync.Mutex
	dispatched []int64
	dispatchFn func(ctx context.Context, record *domain.EmailMessage) error
}

func (f *fakeDispatch) Dispatch(ctx context.Context, record *domain.EmailMessage) error {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, record.ID)
	f.mu.Unlock()

	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, record)
	}
	return nil
}

func TestSweeperProcessPendingDispatchesBatch(t *testing.T) {
	t.Parallel()

	store := newFakeEmailStore()
	store.put(domain.EmailMessage{ID: 1, Recipient: "a@example.com", Subject: "x", Status: domain.EmailStatusPending})
	store.put(domain.EmailMessage{ID: 2, Recipient: "b@example.com", Subject: "x", Status: domain.EmailStatusFailed, RetryCount: 1})
	store.put(domain.EmailMessage{ID: 3, Recipient: "c@example.com", Subject: "x", Status: domain.EmailStatusSent, RetryCount: 1})

	dispatch := &fakeDispatch{}
	s, err := NewSweeper(store, dispatch, time.Minute, 100, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	picked, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if picked != 2 {
		t.Fatalf("expected 2 records picked up, got %d", picked)
	}

	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()
	if len(dispatch.dispatched) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(dispatch.dispatched))
	}
	for _, id := range dispatch.dispatched {
		if id == 3 {
			t.Fatal("sent record must not be handed to the dispatcher")
		}
	}
}

func TestSweeperRequestsOldestFirstWithLimit(t *testing.T) {
	t.Parallel()

	var gotStatuses []domain.EmailStatus
	var gotLimit int

	store := newFakeEmailStore()
	store.findByStatusFn = func(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error) {
		gotStatuses = statuses
		gotLimit = limit
		return nil, nil
	}

	s, err := NewSweeper(store, &fakeDispatch{}, time.Minute, 100, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotLimit != 100 {
		t.Errorf("expected batch limit 100, got %d", gotLimit)
	}
	if len(gotStatuses) != 2 || gotStatuses[0] != domain.EmailStatusPending || gotStatuses[1] != domain.EmailStatusFailed {
		t.Errorf("unexpected statuses %v", gotStatuses)
	}
}

func TestSweeperPropagatesFetchError(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("database unavailable")
	store := newFakeEmailStore()
	store.findByStatusFn = func(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error) {
		return nil, fetchErr
	}

	s, err := NewSweeper(store, &fakeDispatch{}, time.Minute, 100, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.ProcessPending(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}
}

func TestSweeperSurvivesDispatchErrors(t *testing.T) {
	t.Parallel()

	store := newFakeEmailStore()
	store.put(domain.EmailMessage{ID: 1, Recipient: "a@example.com", Subject: "x", Status: domain.EmailStatusPending})
	store.put(domain.EmailMessage{ID: 2, Recipient: "b@example.com", Subject: "x", Status: domain.EmailStatusPending})

	dispatch := &fakeDispatch{
		dispatchFn: func(ctx context.Context, record *domain.EmailMessage) error {
			return errors.New("persistence failed")
		},
	}

	s, err := NewSweeper(store, dispatch, time.Minute, 100, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	picked, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("expected per-record errors to stay inside the sweep, got %v", err)
	}
	if picked != 2 {
		t.Fatalf("expected both records picked up, got %d", picked)
	}
}

// Drives real sweeps over a real dispatcher with a flaky SMTP fake: two
// records deliver on their first attempt, one needs all three.
func TestSweeperDeliversBacklogAcrossRetries(t *testing.T) {
	t.Parallel()

	store := newFakeEmailStore()
	store.put(domain.EmailMessage{ID: 1, Recipient: "a@example.com", Subject: "x", Status: domain.EmailStatusPending})
	store.put(domain.EmailMessage{ID: 2, Recipient: "stubborn@example.com", Subject: "x", Status: domain.EmailStatusPending})
	store.put(domain.EmailMessage{ID: 3, Recipient: "b@example.com", Subject: "x", Status: domain.EmailStatusPending})

	var stubbornAttempts atomic.Int64
	m := &fakeMailer{
		sendFn: func(ctx context.Context, out mailer.Outbound) error {
			if out.Recipient != "stubborn@example.com" {
				return nil
			}
			if stubbornAttempts.Add(1) < 3 {
				return &mailer.SendError{Message: "smtp send failed", Transient: true}
			}
			return nil
		},
	}

	d, err := NewDispatcher(store, m, &fakeLimiter{}, &fakeAlerts{}, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := NewSweeper(store, d, time.Minute, 100, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for sweep := 0; sweep < 3; sweep++ {
		if _, err := s.ProcessPending(context.Background()); err != nil {
			t.Fatalf("sweep %d failed: %v", sweep+1, err)
		}
	}

	for _, tc := range []struct {
		id         int64
		retryCount int
	}{
		{id: 1, retryCount: 1},
		{id: 2, retryCount: 3},
		{id: 3, retryCount: 1},
	} {
		record := store.mustGet(tc.id)
		if record.Status != domain.EmailStatusSent {
			t.Errorf("record %d: expected SENT, got %s", tc.id, record.Status)
		}
		if record.RetryCount != tc.retryCount {
			t.Errorf("record %d: expected retry count %d, got %d", tc.id, tc.retryCount, record.RetryCount)
		}
		if record.SentAt == nil {
			t.Errorf("record %d: expected sentAt to be set", tc.id)
		}
	}

	// A fourth sweep finds nothing left to deliver.
	picked, err := s.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if picked != 0 {
		t.Fatalf("expected an empty sweep, got %d records", picked)
	}
}
