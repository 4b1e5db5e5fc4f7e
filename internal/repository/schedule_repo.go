package repository

import (
	"context"
	"errors"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type ScheduleRepository interface {
	Get(ctx context.Context) (*domain.ReportSchedule, error)
	Update(ctx context.Context, hour, minute int) (*domain.ReportSchedule, error)
}

type GormScheduleRepo struct {
	db *gorm.DB
}

func NewGormScheduleRepo(db *gorm.DB) *GormScheduleRepo {
	return &GormScheduleRepo{db: db}
}

// Get returns the configured daily report time, creating the default row on
// first use.
func (r *GormScheduleRepo) Get(ctx context.Context) (*domain.ReportSchedule, error) {
	var model ScheduleModel
	err := r.db.WithContext(ctx).Order("id ASC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = ScheduleModel{
			Hour:   domain.DefaultReportHour,
			Minute: domain.DefaultReportMinute,
		}
		if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return &domain.ReportSchedule{ID: model.ID, Hour: model.Hour, Minute: model.Minute}, nil
}

func (r *GormScheduleRepo) Update(ctx context.Context, hour, minute int) (*domain.ReportSchedule, error) {
	schedule := &domain.ReportSchedule{Hour: hour, Minute: minute}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ?", current.ID).
		Updates(map[string]any{"hour": hour, "minute": minute})
	if result.Error != nil {
		return nil, result.Error
	}

	schedule.ID = current.ID
	return schedule, nil
}
