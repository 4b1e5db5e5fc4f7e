package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type RunLogRepository interface {
	FindForDate(ctx context.Context, jobName string, date time.Time) (*domain.ReportRunLog, error)
	Save(ctx context.Context, l *domain.ReportRunLog) error
	ListRecent(ctx context.Context, limit int) ([]domain.ReportRunLog, error)
}

type GormRunLogRepo struct {
	db *gorm.DB
}

func NewGormRunLogRepo(db *gorm.DB) *GormRunLogRepo {
	return &GormRunLogRepo{db: db}
}

func (r *GormRunLogRepo) FindForDate(ctx context.Context, jobName string, date time.Time) (*domain.ReportRunLog, error) {
	var model RunLogModel
	err := r.db.WithContext(ctx).
		Where("job_name = ? AND run_date = ?", jobName, domain.DateOnly(date)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return runLogModelToDomain(&model), nil
}

// Save inserts a new row or updates the existing one in place; the guard
// upserts the same (job, date) row across a day's attempts.
func (r *GormRunLogRepo) Save(ctx context.Context, l *domain.ReportRunLog) error {
	if l == nil {
		return domain.ErrValidation
	}

	model := runLogModelFromDomain(l)
	if model.ID == 0 {
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			return err
		}
		*l = *runLogModelToDomain(model)
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&RunLogModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"status":        model.Status,
			"file_name":     model.FileName,
			"generated_at":  model.GeneratedAt,
			"sent_at":       model.SentAt,
			"error_message": model.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRunLogRepo) ListRecent(ctx context.Context, limit int) ([]domain.ReportRunLog, error) {
	if limit < 1 {
		limit = 30
	}

	var models []RunLogModel
	err := r.db.WithContext(ctx).
		Order("run_date DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.ReportRunLog, 0, len(models))
	for i := range models {
		logs = append(logs, *runLogModelToDomain(&models[i]))
	}

	return logs, nil
}
