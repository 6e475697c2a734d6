package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/scope"
)

var (
	ErrCustomerNotFound = errors.New("visa customer not found")
	ErrWalletNotFound   = errors.New("visa wallet not found")
)

type Repository interface {
	CustomerByRegistration(ctx context.Context, registrationID snowflake.ID) (*Customer, error)
	CustomerByID(ctx context.Context, customerID snowflake.ID) (*Customer, error)
	InsertCustomer(ctx context.Context, customer *Customer) error

	// WalletsForCustomer returns wallets newest-first; index 0 is current.
	WalletsForCustomer(ctx context.Context, customerID snowflake.ID) ([]Wallet, error)
	WalletByToken(ctx context.Context, tokenCode string) (*Wallet, error)
	InsertWallet(ctx context.Context, wallet *Wallet) error
	UpdateWallet(ctx context.Context, wallet *Wallet) error
	DeleteWallet(ctx context.Context, walletID snowflake.ID) error

	AllWallets(ctx context.Context) ([]Wallet, error)
	UnlinkedWalletsOlderThan(ctx context.Context, cutoff time.Time) ([]Wallet, error)
}

type Service interface {
	fsp.Integration

	WalletsAndDetails(ctx context.Context, referenceID string, sc scope.Scope) ([]WalletDetails, error)
	ToggleBlockWallet(ctx context.Context, tokenCode string, block bool) error
	ReissueWalletAndCard(ctx context.Context, referenceID string, sc scope.Scope) error
	UpdateWalletDetails(ctx context.Context) error
	StuckWallets(ctx context.Context, olderThan time.Duration) ([]Wallet, error)
}
