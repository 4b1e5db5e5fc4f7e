package repository

import (
	"context"
	"errors"

	"github.com/studentdesk/backend/internal/domain"
	"gorm.io/gorm"
)

type StudentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Student, error)
	ListWithEmail(ctx context.Context) ([]domain.Student, error)
}

type GormStudentRepo struct {
	db *gorm.DB
}

func NewGormStudentRepo(db *gorm.DB) *GormStudentRepo {
	return &GormStudentRepo{db: db}
}

func (r *GormStudentRepo) GetByID(ctx context.Context, id int64) (*domain.Student, error) {
	var model StudentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentModelToDomain(&model), nil
}

// ListWithEmail returns every student that can actually receive mail.
func (r *GormStudentRepo) ListWithEmail(ctx context.Context) ([]domain.Student, error) {
	var models []StudentModel
	err := r.db.WithContext(ctx).
		Where("email IS NOT NULL AND email <> ''").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	students := make([]domain.Student, 0, len(models))
	for i := range models {
		students = append(students, *studentModelToDomain(&models[i]))
	}

	return students, nil
}
