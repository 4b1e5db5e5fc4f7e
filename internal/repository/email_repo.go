package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type StatusCount struct {
	Status domain.EmailStatus `gorm:"column:status"`
	Count  int64              `gorm:"column:count"`
}

type RecipientStatusCount struct {
	Recipient  string             `gorm:"column:recipient"`
	Status     domain.EmailStatus `gorm:"column:status"`
	Count      int64              `gorm:"column:count"`
	LastSentAt *time.Time         `gorm:"column:last_sent_at"`
}

type EmailRepository interface {
	Create(ctx context.Context, m *domain.EmailMessage) error
	Save(ctx context.Context, m *domain.EmailMessage) error
	GetByID(ctx context.Context, id int64) (*domain.EmailMessage, error)
	FindByStatusIn(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error)
	ListRecent(ctx context.Context, limit int) ([]domain.EmailMessage, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	CountByRecipientStatus(ctx context.Context) ([]RecipientStatusCount, error)
	Clear(ctx context.Context) error
}

type GormEmailRepo struct {
	db *gorm.DB
}

func NewGormEmailRepo(db *gorm.DB) *GormEmailRepo {
	return &GormEmailRepo{db: db}
}

func (r *GormEmailRepo) Create(ctx context.Context, m *domain.EmailMessage) error {
	model := emailModelFromDomain(m)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if m != nil {
		*m = *emailModelToDomain(model)
	}
	return nil
}

// Save writes the full record back. The dispatcher re-reads status before
// every decision, so a plain last-writer-wins update is sufficient here.
func (r *GormEmailRepo) Save(ctx context.Context, m *domain.EmailMessage) error {
	if m == nil || m.ID == 0 {
		return domain.ErrNotFound
	}

	model := emailModelFromDomain(m)
	result := r.db.WithContext(ctx).
		Model(&EmailModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"status":          model.Status,
			"sent_at":         model.SentAt,
			"retry_count":     model.RetryCount,
			"last_attempt_at": model.LastAttemptAt,
			"last_error":      model.LastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormEmailRepo) GetByID(ctx context.Context, id int64) (*domain.EmailMessage, error) {
	var model EmailModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return emailModelToDomain(&model), nil
}

// FindByStatusIn returns up to limit records in id order, oldest first, so
// sweeps cannot starve old records behind a steady stream of new ones.
func (r *GormEmailRepo) FindByStatusIn(ctx context.Context, statuses []domain.EmailStatus, limit int) ([]domain.EmailMessage, error) {
	var models []EmailModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.EmailMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *emailModelToDomain(&models[i]))
	}

	return messages, nil
}

func (r *GormEmailRepo) ListRecent(ctx context.Context, limit int) ([]domain.EmailMessage, error) {
	if limit < 1 {
		limit = 100
	}

	var models []EmailModel
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.EmailMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *emailModelToDomain(&models[i]))
	}

	return messages, nil
}

func (r *GormEmailRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&EmailModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// CountByRecipientStatus returns delivery counts grouped per recipient in one
// query, so the per-student report fan-out does not query once per student.
func (r *GormEmailRepo) CountByRecipientStatus(ctx context.Context) ([]RecipientStatusCount, error) {
	var counts []RecipientStatusCount
	err := r.db.WithContext(ctx).
		Model(&EmailModel{}).
		Select("recipient, status, COUNT(*) as count, MAX(sent_at) as last_sent_at").
		Group("recipient, status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormEmailRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&EmailModel{}).Error
}
