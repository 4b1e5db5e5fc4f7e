package repository

import (
	"time"

	"github.com/studentdesk/backend/internal/domain"
)

// EmailModel is the persistence model for the email_messages table.
type EmailModel struct {
	ID            int64              `gorm:"primaryKey;autoIncrement"`
	Recipient     string             `gorm:"type:varchar(255);not null"`
	Subject       string             `gorm:"type:varchar(500);not null"`
	Body          string             `gorm:"type:text"`
	Kind          domain.ContentKind `gorm:"type:varchar(10);not null"`
	Status        domain.EmailStatus `gorm:"type:varchar(10);not null"`
	SentAt        *time.Time
	RetryCount    int `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	LastError     *string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EmailModel) TableName() string {
	return "email_messages"
}

// RunLogModel is the persistence model for report_run_logs.
type RunLogModel struct {
	ID           int64            `gorm:"primaryKey;autoIncrement"`
	RunDate      time.Time        `gorm:"type:date;not null"`
	JobName      string           `gorm:"type:varchar(100);not null"`
	FileName     string           `gorm:"type:varchar(255);not null"`
	Status       domain.RunStatus `gorm:"type:varchar(10);not null"`
	GeneratedAt  time.Time
	SentAt       *time.Time
	ErrorMessage *string `gorm:"type:text"`
}

func (RunLogModel) TableName() string {
	return "report_run_logs"
}

// ScheduleModel is the single-row persistence model for report_schedule.
type ScheduleModel struct {
	ID     int64 `gorm:"primaryKey;autoIncrement"`
	Hour   int   `gorm:"not null"`
	Minute int   `gorm:"not null"`
}

func (ScheduleModel) TableName() string {
	return "report_schedule"
}

// StudentModel is the persistence model for students.
type StudentModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255)"`
	Branch    string `gorm:"type:varchar(100)"`
	CreatedAt time.Time
}

func (StudentModel) TableName() string {
	return "students"
}

// BroadcastTemplateModel is the persistence model for broadcast_templates.
type BroadcastTemplateModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Subject   string `gorm:"type:varchar(500);not null"`
	Message   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (BroadcastTemplateModel) TableName() string {
	return "broadcast_templates"
}

// NotificationModel is the persistence model for in-app notifications.
type NotificationModel struct {
	ID        int64                     `gorm:"primaryKey;autoIncrement"`
	Title     string                    `gorm:"type:varchar(255);not null"`
	Message   string                    `gorm:"type:text"`
	Status    domain.NotificationStatus `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func emailModelFromDomain(m *domain.EmailMessage) *EmailModel {
	if m == nil {
		return nil
	}

	return &EmailModel{
		ID:            m.ID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Body:          m.Body,
		Kind:          m.Kind,
		Status:        m.Status,
		SentAt:        m.SentAt,
		RetryCount:    m.RetryCount,
		LastAttemptAt: m.LastAttemptAt,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func emailModelToDomain(m *EmailModel) *domain.EmailMessage {
	if m == nil {
		return nil
	}

	return &domain.EmailMessage{
		ID:            m.ID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Body:          m.Body,
		Kind:          m.Kind,
		Status:        m.Status,
		SentAt:        m.SentAt,
		RetryCount:    m.RetryCount,
		LastAttemptAt: m.LastAttemptAt,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func runLogModelFromDomain(l *domain.ReportRunLog) *RunLogModel {
	if l == nil {
		return nil
	}

	return &RunLogModel{
		ID:           l.ID,
		RunDate:      domain.DateOnly(l.RunDate),
		JobName:      l.JobName,
		FileName:     l.FileName,
		Status:       l.Status,
		GeneratedAt:  l.GeneratedAt,
		SentAt:       l.SentAt,
		ErrorMessage: l.ErrorMessage,
	}
}

func runLogModelToDomain(m *RunLogModel) *domain.ReportRunLog {
	if m == nil {
		return nil
	}

	return &domain.ReportRunLog{
		ID:           m.ID,
		RunDate:      m.RunDate,
		JobName:      m.JobName,
		FileName:     m.FileName,
		Status:       m.Status,
		GeneratedAt:  m.GeneratedAt,
		SentAt:       m.SentAt,
		ErrorMessage: m.ErrorMessage,
	}
}

func studentModelToDomain(m *StudentModel) *domain.Student {
	if m == nil {
		return nil
	}

	return &domain.Student{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Branch:    m.Branch,
		CreatedAt: m.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:        m.ID,
		Title:     m.Title,
		Message:   m.Message,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}
