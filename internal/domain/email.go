package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmailStatus represents the lifecycle state of an outbound email.
type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
	EmailStatusSent    EmailStatus = "SENT"
	EmailStatusFailed  EmailStatus = "FAILED"
)

func (s EmailStatus) String() string { return string(s) }

func (s EmailStatus) IsValid() bool {
	switch s {
	case EmailStatusPending, EmailStatusSent, EmailStatusFailed:
		return true
	}
	return false
}

func ParseEmailStatusFromString(s string) (EmailStatus, error) {
	st := EmailStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid email status %q", ErrValidation, s)
	}
	return st, nil
}

// ContentKind distinguishes plain-text from HTML email bodies.
type ContentKind string

const (
	ContentKindPlain ContentKind = "PLAIN"
	ContentKindHTML  ContentKind = "HTML"
)

func (k ContentKind) String() string { return string(k) }

func (k ContentKind) IsValid() bool {
	switch k {
	case ContentKindPlain, ContentKindHTML:
		return true
	}
	return false
}

func ParseContentKindFromString(s string) (ContentKind, error) {
	k := ContentKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid content kind %q", ErrValidation, s)
	}
	return k, nil
}

// EmailMessage is the persisted outbound email record. Its status fields are
// the single source of truth for delivery: retries survive restarts because
// the retry counter lives here, not in memory.
type EmailMessage struct {
	ID            int64
	Recipient     string
	Subject       string
	Body          string
	Kind          ContentKind
	Status        EmailStatus
	SentAt        *time.Time
	RetryCount    int
	LastAttemptAt *time.Time
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (m *EmailMessage) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: invalid content kind %q", ErrValidation, m.Kind)
	}
	return nil
}

// IsTerminal reports whether no further delivery attempt may touch the record.
// SENT is always terminal; FAILED is terminal once the retry ceiling is hit.
func (m *EmailMessage) IsTerminal(maxRetries int) bool {
	if m.Status == EmailStatusSent {
		return true
	}
	return m.Status == EmailStatusFailed && m.RetryCount >= maxRetries
}
