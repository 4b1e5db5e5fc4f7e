package repository

import (
	"context"
	"errors"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type BroadcastTemplateRepository interface {
	Save(ctx context.Context, t *domain.BroadcastTemplate) error
	Latest(ctx context.Context) (*domain.BroadcastTemplate, error)
}

type GormBroadcastTemplateRepo struct {
	db *gorm.DB
}

func NewGormBroadcastTemplateRepo(db *gorm.DB) *GormBroadcastTemplateRepo {
	return &GormBroadcastTemplateRepo{db: db}
}

func (r *GormBroadcastTemplateRepo) Save(ctx context.Context, t *domain.BroadcastTemplate) error {
	if t == nil {
		return domain.ErrValidation
	}

	model := &BroadcastTemplateModel{
		Subject: t.Subject,
		Message: t.Message,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	t.ID = model.ID
	t.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormBroadcastTemplateRepo) Latest(ctx context.Context) (*domain.BroadcastTemplate, error) {
	var model BroadcastTemplateModel
	err := r.db.WithContext(ctx).Order("id DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.BroadcastTemplate{
		ID:        model.ID,
		Subject:   model.Subject,
		Message:   model.Message,
		CreatedAt: model.CreatedAt,
	}, nil
}
