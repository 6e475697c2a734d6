package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/transaction/domain"
	"go.uber.org/zap"
)

type service struct {
	repo domain.Repository
	node *snowflake.Node
	log  *zap.Logger
}

func New(repo domain.Repository, node *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		repo: repo,
		node: node,
		log:  log.Named("transaction.service"),
	}
}

func (s *service) Store(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == 0 {
		tx.ID = s.node.Generate()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	if tx.Step == 0 {
		tx.Step = domain.StepPayout
	}
	if err := s.repo.Insert(ctx, tx); err != nil {
		return err
	}
	s.log.Debug("transaction stored",
		zap.String("reference_id", tx.ReferenceID),
		zap.Int("payment_nr", tx.PaymentNr),
		zap.String("status", tx.Status),
		zap.Int("step", tx.Step),
	)
	return nil
}

func (s *service) UpdateBySID(ctx context.Context, messageSID, status, errorMessage string) (*domain.Transaction, error) {
	return s.repo.UpdateBySID(ctx, messageSID, status, errorMessage)
}

func (s *service) ListForRegistration(ctx context.Context, referenceID string, sc scope.Scope) ([]domain.Transaction, error) {
	return s.repo.ListForRegistration(ctx, referenceID, sc)
}

func (s *service) LatestForPayment(ctx context.Context, referenceID string, paymentNr int) (*domain.Transaction, error) {
	return s.repo.LatestForPayment(ctx, referenceID, paymentNr)
}
