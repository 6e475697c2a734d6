package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/fsp/voucher/domain"
	"github.com/reliefops/disburse/internal/scope"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(gdb *gorm.DB) domain.Repository {
	return &repo{db: gdb}
}

func (r *repo) VoucherForPayment(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (*domain.Voucher, error) {
	var voucher domain.Voucher
	stmt := r.db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("reference_id = ? AND payment_nr = ?", referenceID, paymentNr)
	stmt = sc.Apply(stmt, "scope")
	err := stmt.First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repo) InsertVoucher(ctx context.Context, voucher *domain.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

func (r *repo) UpdateVoucher(ctx context.Context, voucher *domain.Voucher) error {
	voucher.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(voucher).Error
}

func (r *repo) VoucherIDBounds(ctx context.Context) (int64, int64, error) {
	var bounds struct {
		MinID int64
		MaxID int64
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(MIN(id), 0) AS min_id, COALESCE(MAX(id), 0) AS max_id FROM vouchers`,
	).Scan(&bounds).Error
	if err != nil {
		return 0, 0, err
	}
	return bounds.MinID, bounds.MaxID, nil
}

func (r *repo) UnusedVouchersInRange(ctx context.Context, fromID, toID int64) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	err := r.db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("id >= ? AND id <= ? AND balance_used = ?", fromID, toID, false).
		Order("id asc").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) VouchersNeedingReminder(ctx context.Context, createdBefore time.Time, maxReminders int) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	err := r.db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("provider = ? AND send = ? AND created_at < ? AND reminder_count < ?",
			fsp.ProviderVoucherWhatsapp, false, createdBefore, maxReminders).
		Order("created_at asc").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) UnusedVoucherReport(ctx context.Context) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	err := r.db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("last_requested_balance_cents = amount_cents").
		Order("created_at asc").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) InsertIssueRequest(ctx context.Context, req *domain.IssueRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repo) MarkIssueRequestToCancel(ctx context.Context, id snowflake.ID, cardID, transactionID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.IssueRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"to_cancel":      true,
			"card_id":        cardID,
			"transaction_id": transactionID,
		}).Error
}

func (r *repo) PendingCancellations(ctx context.Context) ([]domain.IssueRequest, error) {
	var requests []domain.IssueRequest
	err := r.db.WithContext(ctx).
		Model(&domain.IssueRequest{}).
		Where("to_cancel = ? AND canceled_at IS NULL", true).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repo) MarkIssueRequestCanceled(ctx context.Context, id snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.IssueRequest{}).
		Where("id = ?", id).
		Update("canceled_at", at).Error
}
