// Package payment fans a payment run out into queued jobs and answers
// progress and ledger questions about it.
package payment

import (
	"context"
	"fmt"

	"github.com/reliefops/disburse/internal/fsp"
	visadomain "github.com/reliefops/disburse/internal/fsp/visa/domain"
	voucherdomain "github.com/reliefops/disburse/internal/fsp/voucher/domain"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	"github.com/reliefops/disburse/internal/queue"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	txdomain "github.com/reliefops/disburse/internal/transaction/domain"
	"github.com/reliefops/disburse/pkg/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	queue         *queue.Queue
	registrations regdomain.Service
	transactions  txdomain.Service
	programs      programdomain.Service
	visa          visadomain.Service
	voucher       voucherdomain.Service
	log           *zap.Logger
}

func New(
	q *queue.Queue,
	registrations regdomain.Service,
	transactions txdomain.Service,
	programs programdomain.Service,
	visa visadomain.Service,
	voucher voucherdomain.Service,
	log *zap.Logger,
) *Service {
	return &Service{
		queue:         q,
		registrations: registrations,
		transactions:  transactions,
		programs:      programs,
		visa:          visa,
		voucher:       voucher,
		log:           log.Named("payment.service"),
	}
}

// SubmitPaymentRun enqueues one job per resolvable beneficiary and returns
// immediately; workers do the provider calls. The returned count is the
// number of jobs actually enqueued, which can be lower than the number of
// requested reference IDs when some fall outside the caller's scope.
func (s *Service) SubmitPaymentRun(ctx context.Context, programID int64, paymentNr int, amount float64, referenceIDs []string, sc scope.Scope) (int, error) {
	program, err := s.programs.Get(ctx, programID)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		amount = program.DefaultPaymentAmount
	}
	if amount <= 0 {
		return 0, fmt.Errorf("payment amount must be positive")
	}

	registrations, err := s.registrations.ResolveForPayment(ctx, programID, referenceIDs, sc)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for i := range registrations {
		registration := &registrations[i]
		multiplier := registration.PaymentAmountMultiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		env := queue.Envelope{
			PaymentJob: fsp.PaymentJob{
				ReferenceID:   registration.ReferenceID,
				ProgramID:     programID,
				PaymentNr:     paymentNr,
				Amount:        amount * multiplier,
				CorrelationID: correlation.NewID(),
			},
			Provider: registration.FspProvider,
		}
		queued, err := s.queue.Enqueue(ctx, env)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue job for %s: %w", registration.ReferenceID, err)
		}
		if !queued {
			s.log.Warn("payment already queued, skipping",
				zap.String("reference_id", registration.ReferenceID),
				zap.Int("payment_nr", paymentNr),
			)
			continue
		}
		enqueued++
	}

	s.log.Info("payment run submitted",
		zap.Int64("program_id", programID),
		zap.Int("payment_nr", paymentNr),
		zap.Int("requested", len(referenceIDs)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued, nil
}

// Progress reports how many jobs of a program are still outstanding.
func (s *Service) Progress(ctx context.Context, programID int64) (int64, error) {
	return s.queue.Pending(ctx, programID)
}

func (s *Service) TransactionsFor(ctx context.Context, referenceID string, sc scope.Scope) ([]txdomain.Transaction, error) {
	return s.transactions.ListForRegistration(ctx, referenceID, sc)
}

func (s *Service) ToggleBlockWallet(ctx context.Context, tokenCode string, block bool) error {
	return s.visa.ToggleBlockWallet(ctx, tokenCode, block)
}

func (s *Service) Reissue(ctx context.Context, referenceID string, sc scope.Scope) error {
	return s.visa.ReissueWalletAndCard(ctx, referenceID, sc)
}

func (s *Service) Wallets(ctx context.Context, referenceID string, sc scope.Scope) ([]visadomain.WalletDetails, error) {
	return s.visa.WalletsAndDetails(ctx, referenceID, sc)
}

func (s *Service) VoucherBalance(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (int64, error) {
	return s.voucher.GetBalance(ctx, referenceID, paymentNr, sc)
}

func (s *Service) ExportVoucherImage(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) ([]byte, error) {
	return s.voucher.ExportVoucherImage(ctx, referenceID, paymentNr, sc)
}

func (s *Service) ProcessDeliveryStatus(ctx context.Context, messageSID, status string) error {
	return s.voucher.ProcessDeliveryStatus(ctx, messageSID, status)
}

var Module = fx.Module("payment.service",
	fx.Provide(New),
)
