package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the state of one day's scheduled report run.
type RunStatus string

const (
	RunStatusGenerated RunStatus = "GENERATED"
	RunStatusSent      RunStatus = "SENT"
	RunStatusFailed    RunStatus = "FAILED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusGenerated, RunStatusSent, RunStatusFailed:
		return true
	}
	return false
}

func ParseRunStatusFromString(s string) (RunStatus, error) {
	st := RunStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid run status %q", ErrValidation, s)
	}
	return st, nil
}

// ReportRunLog records one attempt of a scheduled daily job for a calendar
// date. At most one row with status SENT may exist per (RunDate, JobName);
// that row is what makes the daily trigger idempotent.
type ReportRunLog struct {
	ID           int64
	RunDate      time.Time
	JobName      string
	FileName     string
	Status       RunStatus
	GeneratedAt  time.Time
	SentAt       *time.Time
	ErrorMessage *string
}

// DateOnly truncates t to its calendar date in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
