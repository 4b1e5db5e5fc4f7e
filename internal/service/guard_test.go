package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"go.uber.org/zap"
)

func newTestGuard(t *testing.T, store *fakeRunLogStore) *RunGuard {
	t.Helper()

	g, err := NewRunGuard(store, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func markSent(t *testing.T, store *fakeRunLogStore, jobName string, date time.Time) {
	t.Helper()

	sentAt := date.Add(11 * time.Hour)
	err := store.Save(context.Background(), &domain.ReportRunLog{
		RunDate: domain.DateOnly(date),
		JobName: jobName,
		Status:  domain.RunStatusSent,
		SentAt:  &sentAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunGuardShouldRunTriggerPaths(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		catchUp  bool
		startup  bool
		sent     bool
		wantRun  bool
		wantPath TriggerPath
	}{
		{
			name:     "exact scheduled minute",
			now:      day.Add(10*time.Hour + 45*time.Minute),
			catchUp:  true,
			wantRun:  true,
			wantPath: TriggerExact,
		},
		{
			name:    "before scheduled time",
			now:     day.Add(9 * time.Hour),
			catchUp: true,
			wantRun: false,
		},
		{
			name:     "catch-up after missed run",
			now:      day.Add(10*time.Hour + 50*time.Minute),
			catchUp:  true,
			wantRun:  true,
			wantPath: TriggerCatchUp,
		},
		{
			name:     "end-of-day cutoff",
			now:      day.Add(23 * time.Hour),
			catchUp:  true,
			wantRun:  true,
			wantPath: TriggerCutoff,
		},
		{
			name:     "cutoff window keeps retrying until midnight",
			now:      day.Add(23*time.Hour + 5*time.Minute),
			catchUp:  true,
			wantRun:  true,
			wantPath: TriggerCutoff,
		},
		{
			name:     "last tick of the day",
			now:      day.Add(23*time.Hour + 59*time.Minute),
			catchUp:  true,
			wantRun:  true,
			wantPath: TriggerCutoff,
		},
		{
			name:     "startup past scheduled time",
			now:      day.Add(14 * time.Hour),
			catchUp:  true,
			startup:  true,
			wantRun:  true,
			wantPath: TriggerStartup,
		},
		{
			name:    "startup before scheduled time",
			now:     day.Add(8 * time.Hour),
			catchUp: true,
			startup: true,
			wantRun: false,
		},
		{
			name:    "already sent today",
			now:     day.Add(10*time.Hour + 45*time.Minute),
			catchUp: true,
			sent:    true,
			wantRun: false,
		},
		{
			name:    "no catch-up job after its minute",
			now:     day.Add(11 * time.Hour),
			catchUp: false,
			wantRun: false,
		},
		{
			name:     "no catch-up job on its minute",
			now:      day.Add(10*time.Hour + 45*time.Minute),
			catchUp:  false,
			wantRun:  true,
			wantPath: TriggerExact,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeRunLogStore()
			if tc.sent {
				markSent(t, store, JobProgressReport, day)
			}
			g := newTestGuard(t, store)

			run, path, err := g.ShouldRun(context.Background(), JobProgressReport, 10, 45, tc.catchUp, tc.startup, tc.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if run != tc.wantRun {
				t.Fatalf("expected run=%v, got %v", tc.wantRun, run)
			}
			if run && path != tc.wantPath {
				t.Fatalf("expected path %q, got %q", tc.wantPath, path)
			}
		})
	}
}

func TestRunGuardFailedRunIsRetriedByLaterPath(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := newFakeRunLogStore()
	msg := "smtp unreachable"
	err := store.Save(context.Background(), &domain.ReportRunLog{
		RunDate:      day,
		JobName:      JobProgressReport,
		Status:       domain.RunStatusFailed,
		ErrorMessage: &msg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := newTestGuard(t, store)
	run, path, err := g.ShouldRun(context.Background(), JobProgressReport, 10, 45, true, false, day.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run || path != TriggerCatchUp {
		t.Fatalf("expected failed run to be retried via catch-up, got run=%v path=%q", run, path)
	}
}

func TestRunGuardFailedCutoffRunIsRetriedUntilMidnight(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := newFakeRunLogStore()
	msg := "smtp unreachable"
	err := store.Save(context.Background(), &domain.ReportRunLog{
		RunDate:      day,
		JobName:      JobProgressReport,
		Status:       domain.RunStatusFailed,
		ErrorMessage: &msg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := newTestGuard(t, store)
	for _, at := range []time.Time{
		day.Add(23*time.Hour + 1*time.Minute),
		day.Add(23*time.Hour + 30*time.Minute),
	} {
		run, path, err := g.ShouldRun(context.Background(), JobProgressReport, 10, 45, true, false, at)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !run || path != TriggerCutoff {
			t.Fatalf("expected cutoff retry at %s, got run=%v path=%q", at.Format("15:04"), run, path)
		}
	}
}

func TestRunGuardShouldRunPropagatesLookupError(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("database unavailable")
	store := newFakeRunLogStore()
	store.findForDateFn = func(ctx context.Context, jobName string, date time.Time) (*domain.ReportRunLog, error) {
		return nil, lookupErr
	}

	g := newTestGuard(t, store)
	if _, _, err := g.ShouldRun(context.Background(), JobProgressReport, 10, 45, true, false, time.Now()); !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}
}

func TestRunGuardBeginIsExclusivePerJobAndDate(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, newFakeRunLogStore())
	day := time.Date(2026, 3, 14, 10, 45, 0, 0, time.UTC)

	if !g.Begin(JobProgressReport, day) {
		t.Fatal("expected first Begin to claim the slot")
	}
	if g.Begin(JobProgressReport, day) {
		t.Fatal("expected second Begin for the same job and date to fail")
	}
	if !g.Begin(JobAnalyticsReport, day) {
		t.Fatal("expected a different job to claim its own slot")
	}
	if !g.Begin(JobProgressReport, day.AddDate(0, 0, 1)) {
		t.Fatal("expected a different date to claim its own slot")
	}

	g.Finish(JobProgressReport, day)
	if !g.Begin(JobProgressReport, day) {
		t.Fatal("expected Begin to succeed after Finish")
	}
}

func TestRunGuardMarkGeneratedReusesFailedRow(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := newFakeRunLogStore()
	msg := "smtp unreachable"
	err := store.Save(context.Background(), &domain.ReportRunLog{
		RunDate:      day,
		JobName:      JobProgressReport,
		Status:       domain.RunStatusFailed,
		ErrorMessage: &msg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	existing := store.mustGet(JobProgressReport, day)

	g := newTestGuard(t, store)
	g.now = func() time.Time { return day.Add(11 * time.Hour) }

	log, err := g.MarkGenerated(context.Background(), JobProgressReport, day, "progress_2026-03-14.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if log.ID != existing.ID {
		t.Fatalf("expected the existing row %d to be reused, got %d", existing.ID, log.ID)
	}
	if log.Status != domain.RunStatusGenerated {
		t.Errorf("expected status GENERATED, got %s", log.Status)
	}
	if log.ErrorMessage != nil {
		t.Error("expected previous error message to be cleared")
	}
	if log.FileName != "progress_2026-03-14.csv" {
		t.Errorf("unexpected file name %q", log.FileName)
	}
}

func TestRunGuardRecordSuccess(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := newFakeRunLogStore()
	g := newTestGuard(t, store)
	g.now = func() time.Time { return day.Add(10*time.Hour + 45*time.Minute) }

	log, err := g.MarkGenerated(context.Background(), JobProgressReport, day, "progress_2026-03-14.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.RecordSuccess(context.Background(), log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved := store.mustGet(JobProgressReport, day)
	if saved.Status != domain.RunStatusSent {
		t.Errorf("expected status SENT, got %s", saved.Status)
	}
	if saved.SentAt == nil {
		t.Error("expected sentAt to be set")
	}

	sent, err := g.AlreadySent(context.Background(), JobProgressReport, day.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatal("expected the day to be latched after success")
	}
}

func TestRunGuardRecordFailure(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := newFakeRunLogStore()
	g := newTestGuard(t, store)

	log, err := g.MarkGenerated(context.Background(), JobProgressReport, day, "progress_2026-03-14.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cause := errors.New("smtp unreachable")
	if err := g.RecordFailure(context.Background(), log, cause); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved := store.mustGet(JobProgressReport, day)
	if saved.Status != domain.RunStatusFailed {
		t.Errorf("expected status FAILED, got %s", saved.Status)
	}
	if saved.ErrorMessage == nil || *saved.ErrorMessage != "smtp unreachable" {
		t.Errorf("unexpected error message %v", saved.ErrorMessage)
	}

	sent, err := g.AlreadySent(context.Background(), JobProgressReport, day.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatal("a failed run must not latch the day")
	}
}
