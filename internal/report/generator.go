package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"github.com/studentdesk/backend/internal/repository"
)

// Generator builds the CSV payloads for the daily report jobs. File names
// carry the run date so re-runs of the same day overwrite rather than pile up
// on the receiving side.
type Generator struct {
	studentRepo repository.StudentRepository
	emailRepo   repository.EmailRepository
	now         func() time.Time
}

func NewGenerator(studentRepo repository.StudentRepository, emailRepo repository.EmailRepository) (*Generator, error) {
	if studentRepo == nil {
		return nil, fmt.Errorf("student repository is required")
	}
	if emailRepo == nil {
		return nil, fmt.Errorf("email repository is required")
	}

	return &Generator{
		studentRepo: studentRepo,
		emailRepo:   emailRepo,
		now:         time.Now,
	}, nil
}

// BuildProgressReport lists every enrolled student with a deliverable email
// address, one row per student.
func (g *Generator) BuildProgressReport(ctx context.Context) (string, []byte, error) {
	students, err := g.studentRepo.ListWithEmail(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load students for progress report: %w", err)
	}

	rows := [][]string{{"student_id", "name", "email", "branch"}}
	for _, s := range students {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			s.Name,
			s.Email,
			s.Branch,
		})
	}

	content, err := writeCSV(rows)
	if err != nil {
		return "", nil, err
	}

	return g.fileName("progress"), content, nil
}

// BuildAnalyticsReport summarizes delivery outcomes by status.
func (g *Generator) BuildAnalyticsReport(ctx context.Context) (string, []byte, error) {
	counts, err := g.emailRepo.CountByStatus(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load delivery counts for analytics report: %w", err)
	}

	rows := [][]string{{"status", "count"}}
	for _, c := range counts {
		rows = append(rows, []string{
			c.Status.String(),
			strconv.FormatInt(c.Count, 10),
		})
	}

	content, err := writeCSV(rows)
	if err != nil {
		return "", nil, err
	}

	return g.fileName("analytics"), content, nil
}

// StudentActivity is one student's delivery summary for the individual
// daily report.
type StudentActivity struct {
	Student    domain.Student
	Delivered  int64
	Failed     int64
	Pending    int64
	LastSentAt *time.Time
}

// BuildStudentActivity pairs every student holding a deliverable address with
// their delivery counts. Counts come back grouped in a single query and are
// joined in memory, so the cost stays flat as the student list grows.
func (g *Generator) BuildStudentActivity(ctx context.Context) ([]StudentActivity, error) {
	students, err := g.studentRepo.ListWithEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load students for individual reports: %w", err)
	}

	counts, err := g.emailRepo.CountByRecipientStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load per-recipient delivery counts: %w", err)
	}

	byRecipient := make(map[string][]repository.RecipientStatusCount, len(counts))
	for _, c := range counts {
		byRecipient[c.Recipient] = append(byRecipient[c.Recipient], c)
	}

	activity := make([]StudentActivity, 0, len(students))
	for _, s := range students {
		entry := StudentActivity{Student: s}
		for _, c := range byRecipient[s.Email] {
			switch c.Status {
			case domain.EmailStatusSent:
				entry.Delivered = c.Count
				entry.LastSentAt = c.LastSentAt
			case domain.EmailStatusFailed:
				entry.Failed = c.Count
			case domain.EmailStatusPending:
				entry.Pending = c.Count
			}
		}
		activity = append(activity, entry)
	}

	return activity, nil
}

func (g *Generator) fileName(report string) string {
	return fmt.Sprintf("%s_%s.csv", report, g.now().UTC().Format("2006-01-02"))
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}

	return buf.Bytes(), nil
}
