package repository

import (
	"context"
	"errors"
	"time"

	"github.com/reliefops/disburse/internal/program/domain"
	"github.com/reliefops/disburse/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(gdb *gorm.DB) domain.Repository {
	return &repo{db: gdb}
}

func (r *repo) FindByID(ctx context.Context, id int64) (*domain.Program, error) {
	var program domain.Program
	err := r.db.WithContext(ctx).
		Model(&domain.Program{}).
		Where("id = ?", id).
		First(&program).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &program, nil
}

func (r *repo) FspConfigurations(ctx context.Context, programID int64, provider string) ([]domain.FspConfiguration, error) {
	var configs []domain.FspConfiguration
	err := r.db.WithContext(ctx).
		Model(&domain.FspConfiguration{}).
		Where("program_id = ? AND provider = ?", programID, provider).
		Order("name asc").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) SaveProgram(ctx context.Context, program *domain.Program) error {
	return r.db.WithContext(ctx).Create(program).Error
}

func (r *repo) SaveFspConfiguration(ctx context.Context, cfg *domain.FspConfiguration) error {
	cfg.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Create(cfg).Error
	if err == nil {
		return nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&domain.FspConfiguration{}).
		Where("program_id = ? AND provider = ? AND name = ?", cfg.ProgramID, cfg.Provider, cfg.Name).
		Updates(map[string]interface{}{
			"value":      cfg.Value,
			"updated_at": cfg.UpdatedAt,
		}).Error
}
