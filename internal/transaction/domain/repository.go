package domain

import (
	"context"
	"errors"

	"github.com/reliefops/disburse/internal/scope"
)

var ErrNotFound = errors.New("transaction not found")

type Repository interface {
	Insert(ctx context.Context, tx *Transaction) error
	UpdateBySID(ctx context.Context, messageSID, status, errorMessage string) (*Transaction, error)
	ListForRegistration(ctx context.Context, referenceID string, sc scope.Scope) ([]Transaction, error)
	LatestForPayment(ctx context.Context, referenceID string, paymentNr int) (*Transaction, error)
}

type Service interface {
	Store(ctx context.Context, tx *Transaction) error
	UpdateBySID(ctx context.Context, messageSID, status, errorMessage string) (*Transaction, error)
	ListForRegistration(ctx context.Context, referenceID string, sc scope.Scope) ([]Transaction, error)
	LatestForPayment(ctx context.Context, referenceID string, paymentNr int) (*Transaction, error)
}
