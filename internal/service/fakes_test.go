package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/mailer"
	"github.com/studentdesk/backend/internal/repository"
)

// fakeEmailStore is an in-memory EmailRepository with optional overrides.
type fakeEmailStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.EmailMessage

	createFn       func(ctx context.Context, m *domain.EmailMessage) error
	saveFn         func(ctx context.Context, m *domain.EmailMessage) error
	findByStatusFn func(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error)
}

func newFakeEmailStore() *fakeEmailStore {
	return &fakeEmailStore{records: make(map[int64]*domain.EmailMessage)}
}

func (f *fakeEmailStore) Create(ctx context.Context, m *domain.EmailMessage) error {
	if f.createFn != nil {
		return f.createFn(ctx, m)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	clone := *m
	f.records[m.ID] = &clone
	return nil
}

func (f *fakeEmailStore) Save(ctx context.Context, m *domain.EmailMessage) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, m)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[m.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *m
	f.records[m.ID] = &clone
	return nil
}

func (f *fakeEmailStore) GetByID(ctx context.Context, id int64) (*domain.EmailMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeEmailStore) FindByStatusIn(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error) {
	if f.findByStatusFn != nil {
		return f.findByStatusFn(ctx, statuses, limit)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[domain.EmailStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	ids := make([]int64, 0, len(f.records))
	for id, record := range f.records {
		if wanted[record.Status] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.EmailMessage, 0, limit)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		out = append(out, *f.records[id])
	}
	return out, nil
}

func (f *fakeEmailStore) ListRecent(ctx context.Context, limit int) ([]domain.EmailMessage, error) {
	return nil, nil
}

func (f *fakeEmailStore) CountByStatus(ctx context.Context) ([]repository.StatusCount, error) {
	return nil, nil
}

func (f *fakeEmailStore) CountByRecipientStatus(ctx context.Context) ([]repository.RecipientStatusCount, error) {
	return nil, nil
}

func (f *fakeEmailStore) Clear(ctx context.Context) error { return nil }

func (f *fakeEmailStore) mustGet(id int64) domain.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeEmailStore) put(m domain.EmailMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID > f.nextID {
		f.nextID = m.ID
	}
	clone := m
	f.records[m.ID] = &clone
}

// fakeRunLogStore is an in-memory RunLogRepository keyed by (job, date).
type fakeRunLogStore struct {
	mu     sync.Mutex
	nextID int64
	logs   map[string]*domain.ReportRunLog

	findForDateFn func(ctx context.Context, jobName string, date time.Time) (*domain.ReportRunLog, error)
	saveFn        func(ctx context.Context, l *domain.ReportRunLog) error
}

func newFakeRunLogStore() *fakeRunLogStore {
	return &fakeRunLogStore{logs: make(map[string]*domain.ReportRunLog)}
}

func runLogKey(jobName string, date time.Time) string {
	return jobName + ":" + domain.DateOnly(date).Format("2006-01-02")
}

func (f *fakeRunLogStore) FindForDate(ctx context.Context, jobName string, date time.Time) (*domain.ReportRunLog, error) {
	if f.findForDateFn != nil {
		return f.findForDateFn(ctx, jobName, date)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.logs[runLogKey(jobName, date)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *log
	return &clone, nil
}

func (f *fakeRunLogStore) Save(ctx context.Context, l *domain.ReportRunLog) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, l)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if l.ID == 0 {
		f.nextID++
		l.ID = f.nextID
	}
	clone := *l
	f.logs[runLogKey(l.JobName, l.RunDate)] = &clone
	return nil
}

func (f *fakeRunLogStore) ListRecent(ctx context.Context, limit int) ([]domain.ReportRunLog, error) {
	return nil, nil
}

func (f *fakeRunLogStore) mustGet(jobName string, date time.Time) domain.ReportRunLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.logs[runLogKey(jobName, date)]
}

// fakeMailer scripts delivery outcomes per call.
type fakeMailer struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, out mailer.Outbound) error
	sent   []mailer.Outbound
}

func (f *fakeMailer) Send(ctx context.Context, out mailer.Outbound) error {
	f.mu.Lock()
	f.sent = append(f.sent, out)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, out)
	}
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	mu     sync.Mutex
	waitFn func(ctx context.Context, scope string) error
	scopes []string
}

func (f *fakeLimiter) Allow(ctx context.Context, scope string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, scope string) error {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()

	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

type fakeAlerts struct {
	mu            sync.Mutex
	exhausted     []int64
	failedReports []string
	failedReasons []string
}

func (f *fakeAlerts) RetryExhausted(ctx context.Context, emailID int64, recipient, lastError string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exhausted = append(f.exhausted, emailID)
}

func (f *fakeAlerts) ReportFailed(ctx context.Context, jobName string, runDate time.Time, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedReports = append(f.failedReports, jobName)
	f.failedReasons = append(f.failedReasons, reason)
}

type fakeSubmitter struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeSubmitter) Submit(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

type fakeStudents struct {
	listWithEmailFn func(ctx context.Context) ([]domain.Student, error)
}

func (f *fakeStudents) GetByID(ctx context.Context, id int64) (*domain.Student, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeStudents) ListWithEmail(ctx context.Context) ([]domain.Student, error) {
	return f.listWithEmailFn(ctx)
}

type fakeTemplates struct {
	mu       sync.Mutex
	saved    []domain.BroadcastTemplate
	latestFn func(ctx context.Context) (*domain.BroadcastTemplate, error)
}

func (f *fakeTemplates) Save(ctx context.Context, t *domain.BroadcastTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, *t)
	return nil
}

func (f *fakeTemplates) Latest(ctx context.Context) (*domain.BroadcastTemplate, error) {
	if f.latestFn != nil {
		return f.latestFn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := f.saved[len(f.saved)-1]
	return &latest, nil
}

type fakeNotifications struct {
	mu       sync.Mutex
	created  []domain.Notification
	createFn func(ctx context.Context, n *domain.Notification) error
}

func (f *fakeNotifications) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.created) + 1)
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotifications) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkRead(ctx context.Context, id int64) (*domain.Notification, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeNotifications) Clear(ctx context.Context) error { return nil }

type fakeBuilder struct {
	progressFn  func(ctx context.Context) (string, []byte, error)
	analyticsFn func(ctx context.Context) (string, []byte, error)
}

func (f *fakeBuilder) BuildProgressReport(ctx context.Context) (string, []byte, error) {
	return f.progressFn(ctx)
}

func (f *fakeBuilder) BuildAnalyticsReport(ctx context.Context) (string, []byte, error) {
	return f.analyticsFn(ctx)
}
