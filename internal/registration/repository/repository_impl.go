package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(gdb *gorm.DB) domain.Repository {
	return &repo{db: gdb}
}

func (r *repo) FindByReferenceID(ctx context.Context, referenceID string, sc scope.Scope) (*domain.Registration, error) {
	var registration domain.Registration
	stmt := r.db.WithContext(ctx).
		Model(&domain.Registration{}).
		Where("reference_id = ?", referenceID)
	stmt = sc.Apply(stmt, "scope")
	err := stmt.First(&registration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

func (r *repo) FindByReferenceIDs(ctx context.Context, programID int64, referenceIDs []string, sc scope.Scope) ([]domain.Registration, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}
	var registrations []domain.Registration
	stmt := r.db.WithContext(ctx).
		Model(&domain.Registration{}).
		Where("program_id = ?", programID).
		Where("reference_id IN ?", referenceIDs)
	stmt = sc.Apply(stmt, "scope")
	err := stmt.Order("reference_id asc").Find(&registrations).Error
	if err != nil {
		return nil, err
	}
	return registrations, nil
}

func (r *repo) UpdateStatus(ctx context.Context, registrationID snowflake.ID, status string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Registration{}).
		Where("id = ?", registrationID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) AttributeDefinitions(ctx context.Context, programID int64) ([]domain.AttributeDefinition, error) {
	var definitions []domain.AttributeDefinition
	err := r.db.WithContext(ctx).
		Model(&domain.AttributeDefinition{}).
		Where("program_id = ?", programID).
		Order("key asc").
		Find(&definitions).Error
	if err != nil {
		return nil, err
	}
	return definitions, nil
}

func (r *repo) Attributes(ctx context.Context, registrationID snowflake.ID) ([]domain.RegistrationAttribute, error) {
	var attributes []domain.RegistrationAttribute
	err := r.db.WithContext(ctx).
		Model(&domain.RegistrationAttribute{}).
		Where("registration_id = ?", registrationID).
		Order("key asc").
		Find(&attributes).Error
	if err != nil {
		return nil, err
	}
	return attributes, nil
}

func (r *repo) UpsertAttribute(ctx context.Context, attr *domain.RegistrationAttribute) error {
	attr.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Create(attr).Error
	if err == nil {
		return nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&domain.RegistrationAttribute{}).
		Where("registration_id = ? AND key = ?", attr.RegistrationID, attr.Key).
		Updates(map[string]interface{}{
			"value":      attr.Value,
			"updated_at": attr.UpdatedAt,
		}).Error
}
