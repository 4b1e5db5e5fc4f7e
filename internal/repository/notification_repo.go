package repository

import (
	"context"
	"errors"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id int64) (*domain.Notification, error)
	Clear(ctx context.Context) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return domain.ErrValidation
	}
	if err := n.Validate(); err != nil {
		return err
	}

	model := &NotificationModel{
		Title:   n.Title,
		Message: n.Message,
		Status:  domain.NotificationUnread,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) MarkRead(ctx context.Context, id int64) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Model(&model).
		Update("status", domain.NotificationRead).Error; err != nil {
		return nil, err
	}

	model.Status = domain.NotificationRead
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&NotificationModel{}).Error
}
