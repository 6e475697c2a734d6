package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/fsp/visa/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(gdb *gorm.DB) domain.Repository {
	return &repo{db: gdb}
}

func (r *repo) CustomerByRegistration(ctx context.Context, registrationID snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("registration_id = ?", registrationID).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) CustomerByID(ctx context.Context, customerID snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("id = ?", customerID).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) InsertCustomer(ctx context.Context, customer *domain.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repo) WalletsForCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Wallet, error) {
	var wallets []domain.Wallet
	err := r.db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repo) WalletByToken(ctx context.Context, tokenCode string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("token_code = ?", tokenCode).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) InsertWallet(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repo) UpdateWallet(ctx context.Context, wallet *domain.Wallet) error {
	wallet.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(wallet).Error
}

func (r *repo) DeleteWallet(ctx context.Context, walletID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", walletID).
		Delete(&domain.Wallet{}).Error
}

func (r *repo) AllWallets(ctx context.Context) ([]domain.Wallet, error) {
	var wallets []domain.Wallet
	err := r.db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Order("id asc").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repo) UnlinkedWalletsOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Wallet, error) {
	var wallets []domain.Wallet
	err := r.db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("linked_to_customer = ? AND created_at < ?", false, cutoff).
		Order("created_at asc").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}
