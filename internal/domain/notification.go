package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationStatus is the read state of an in-app notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "UNREAD"
	NotificationRead   NotificationStatus = "READ"
)

func (s NotificationStatus) String() string { return string(s) }

func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationUnread, NotificationRead:
		return true
	}
	return false
}

// Notification is an in-app message surfaced on the admin dashboard, e.g.
// "daily report emailed".
type Notification struct {
	ID        int64
	Title     string
	Message   string
	Status    NotificationStatus
	CreatedAt time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	return nil
}
