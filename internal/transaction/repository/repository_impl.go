package repository

import (
	"context"
	"errors"
	"time"

	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(gdb *gorm.DB) domain.Repository {
	return &repo{db: gdb}
}

func (r *repo) Insert(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repo) UpdateBySID(ctx context.Context, messageSID, status, errorMessage string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("message_sid = ?", messageSID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", tx.ID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	tx.Status = status
	tx.ErrorMessage = errorMessage
	return &tx, nil
}

func (r *repo) ListForRegistration(ctx context.Context, referenceID string, sc scope.Scope) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	stmt := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("reference_id = ?", referenceID)
	stmt = sc.Apply(stmt, "scope")
	err := stmt.Order("created_at desc, id desc").Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) LatestForPayment(ctx context.Context, referenceID string, paymentNr int) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("reference_id = ? AND payment_nr = ?", referenceID, paymentNr).
		Order("created_at desc, id desc").
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
