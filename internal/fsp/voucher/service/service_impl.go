package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/config"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/fsp/voucher/api"
	"github.com/reliefops/disburse/internal/fsp/voucher/domain"
	"github.com/reliefops/disburse/internal/imagecode"
	"github.com/reliefops/disburse/internal/notification"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"github.com/reliefops/disburse/internal/scope"
	"github.com/reliefops/disburse/internal/secrets"
	txdomain "github.com/reliefops/disburse/internal/transaction/domain"
	"go.uber.org/zap"
)

type service struct {
	repo          domain.Repository
	client        api.Client
	registrations regdomain.Service
	transactions  txdomain.Service
	secrets       *secrets.Resolver
	payout        *config.PayoutConfigHolder
	dispatcher    notification.Dispatcher
	node          *snowflake.Node
	clock         clock.Clock
	log           *zap.Logger
}

func New(
	repo domain.Repository,
	client api.Client,
	registrations regdomain.Service,
	transactions txdomain.Service,
	resolver *secrets.Resolver,
	payout *config.PayoutConfigHolder,
	dispatcher notification.Dispatcher,
	node *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		repo:          repo,
		client:        client,
		registrations: registrations,
		transactions:  transactions,
		secrets:       resolver,
		payout:        payout,
		dispatcher:    dispatcher,
		node:          node,
		clock:         clk,
		log:           log.Named("voucher.service"),
	}
}

// SendPayment issues a voucher, or reuses the unclaimed one left behind by
// an earlier attempt for the same payment. A claimed voucher means the
// beneficiary already has the money, so the job aborts instead of paying
// twice.
func (s *service) SendPayment(ctx context.Context, job fsp.PaymentJob, provider string) (fsp.Result, error) {
	registration, err := s.registrations.Get(ctx, job.ReferenceID, scope.All())
	if err != nil {
		return fsp.Result{}, &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("registration %s not found for payment job", job.ReferenceID),
		}
	}
	creds, err := s.secrets.Credentials(ctx, job.ProgramID, provider)
	if err != nil {
		return fsp.Result{}, err
	}

	voucher, err := s.repo.VoucherForPayment(ctx, job.ReferenceID, job.PaymentNr, scope.All())
	switch {
	case err == nil && voucher.Send:
		s.log.Warn("voucher for this payment was already delivered, not issuing again",
			zap.String("reference_id", job.ReferenceID),
			zap.Int("payment_nr", job.PaymentNr),
		)
		return fsp.Result{}, &fsp.LocalConsistencyError{
			Message: fmt.Sprintf("voucher already sent for payment %d of %s", job.PaymentNr, job.ReferenceID),
			Err:     domain.ErrAlreadySent,
		}
	case err == nil:
		// Unclaimed voucher from an earlier attempt; skip issuing and retry
		// delivery.
	case errors.Is(err, domain.ErrVoucherNotFound):
		voucher, err = s.issueVoucher(ctx, creds, registration, job, provider)
		if err != nil {
			return fsp.Result{}, err
		}
	default:
		return fsp.Result{}, err
	}

	if provider == fsp.ProviderVoucherWhatsapp {
		amount := fmt.Sprintf("%.2f", float64(voucher.AmountCents)/100)
		sid, err := s.dispatcher.EnqueueMessage(ctx, registration, notification.TemplateVoucherPayment, []string{amount})
		if err != nil {
			return fsp.Result{}, fmt.Errorf("enqueue voucher message: %w", err)
		}
		return fsp.Result{
			Status:           fsp.StatusWaiting,
			CalculatedAmount: job.Amount,
			MessageSID:       sid,
		}, nil
	}

	if !voucher.Send {
		voucher.Send = true
		if err := s.repo.UpdateVoucher(ctx, voucher); err != nil {
			return fsp.Result{}, fmt.Errorf("save voucher: %w", err)
		}
	}
	return fsp.Result{
		Status:           fsp.StatusSuccess,
		CalculatedAmount: job.Amount,
	}, nil
}

func (s *service) issueVoucher(ctx context.Context, creds secrets.Credentials, registration *regdomain.Registration, job fsp.PaymentJob, provider string) (*domain.Voucher, error) {
	amountCents := toCents(job.Amount)
	refPos, err := randomRefPos()
	if err != nil {
		return nil, fmt.Errorf("generate reference position: %w", err)
	}

	request := &domain.IssueRequest{
		ID:          s.node.Generate(),
		ReferenceID: job.ReferenceID,
		ProgramID:   job.ProgramID,
		PaymentNr:   job.PaymentNr,
		RefPos:      refPos,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.repo.InsertIssueRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("record issue request: %w", err)
	}

	resp, err := s.client.Issue(ctx, creds, amountCents, refPos)
	if err != nil {
		// The provider may have issued the voucher before the connection
		// died; the cancellation sweep settles it by refPos.
		if markErr := s.repo.MarkIssueRequestToCancel(ctx, request.ID, "", ""); markErr != nil {
			s.log.Error("could not mark issue request for cancellation", zap.Error(markErr))
		}
		return nil, err
	}
	if !resp.OK() {
		if markErr := s.repo.MarkIssueRequestToCancel(ctx, request.ID, resp.CardID, resp.TransactionID); markErr != nil {
			s.log.Error("could not mark issue request for cancellation", zap.Error(markErr))
		}
		return nil, fmt.Errorf("Creating voucher failed. Status code: %d message: %s", resp.ResultCode, resp.ResultDescription)
	}

	now := s.clock.Now().UTC()
	voucher := &domain.Voucher{
		ID:             s.node.Generate(),
		RegistrationID: registration.ID,
		ReferenceID:    job.ReferenceID,
		ProgramID:      job.ProgramID,
		PaymentNr:      job.PaymentNr,
		Provider:       provider,
		Barcode:        resp.CardID,
		Pin:            resp.Pin,
		AmountCents:    amountCents,
		WhatsappNumber: registration.PaymentAddress,
		Scope:          registration.Scope,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertVoucher(ctx, voucher); err != nil {
		return nil, fmt.Errorf("save voucher: %w", err)
	}
	return voucher, nil
}

// ProcessDeliveryStatus handles the messaging gateway's status callback for
// a voucher message. Delivery closes the waiting ledger row and marks the
// voucher as received.
func (s *service) ProcessDeliveryStatus(ctx context.Context, messageSID, status string) error {
	if err := s.dispatcher.MarkDelivery(ctx, messageSID, status); err != nil {
		s.log.Warn("could not update message audit row",
			zap.String("message_sid", messageSID),
			zap.Error(err),
		)
	}

	txStatus := fsp.StatusError
	errorMessage := fmt.Sprintf("Message delivery failed with status %q", status)
	delivered := status == notification.StatusDelivered || status == notification.StatusRead
	if delivered {
		txStatus = fsp.StatusSuccess
		errorMessage = ""
	}

	tx, err := s.transactions.UpdateBySID(ctx, messageSID, txStatus, errorMessage)
	if err != nil {
		return fmt.Errorf("update transaction for sid %s: %w", messageSID, err)
	}
	if !delivered {
		return nil
	}

	voucher, err := s.repo.VoucherForPayment(ctx, tx.ReferenceID, tx.PaymentNr, scope.All())
	if err != nil {
		return fmt.Errorf("voucher for delivered message: %w", err)
	}
	if voucher.Send {
		return nil
	}
	voucher.Send = true
	return s.repo.UpdateVoucher(ctx, voucher)
}

func (s *service) GetBalance(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) (int64, error) {
	voucher, err := s.repo.VoucherForPayment(ctx, referenceID, paymentNr, sc)
	if err != nil {
		return 0, err
	}
	creds, err := s.secrets.Credentials(ctx, voucher.ProgramID, voucher.Provider)
	if err != nil {
		return 0, err
	}
	cents, err := s.client.GetBalance(ctx, creds, voucher.Barcode, voucher.Pin)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now().UTC()
	voucher.LastRequestedBalance = &cents
	voucher.BalanceRequestedAt = &now
	if err := s.repo.UpdateVoucher(ctx, voucher); err != nil {
		return 0, err
	}
	return cents, nil
}

func (s *service) ExportVoucherImage(ctx context.Context, referenceID string, paymentNr int, sc scope.Scope) ([]byte, error) {
	voucher, err := s.repo.VoucherForPayment(ctx, referenceID, paymentNr, sc)
	if err != nil {
		return nil, err
	}
	return imagecode.Render(voucher.Barcode, voucher.Pin)
}

// CancelPendingIssueRequests settles issue attempts that never became
// vouchers, so no value stays parked at the provider.
func (s *service) CancelPendingIssueRequests(ctx context.Context) error {
	pending, err := s.repo.PendingCancellations(ctx)
	if err != nil {
		return err
	}

	credsByProgram := make(map[int64]secrets.Credentials)
	var errs []error
	for _, request := range pending {
		creds, ok := credsByProgram[request.ProgramID]
		if !ok {
			creds, err = s.secrets.Credentials(ctx, request.ProgramID, fsp.ProviderVoucherWhatsapp)
			if err != nil {
				errs = append(errs, fmt.Errorf("program %d: %w", request.ProgramID, err))
				continue
			}
			credsByProgram[request.ProgramID] = creds
		}

		if request.CardID != "" && request.TransactionID != "" {
			err = s.client.Cancel(ctx, creds, request.CardID, request.TransactionID)
		} else {
			err = s.client.CancelByRefPos(ctx, creds, request.RefPos)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("issue request %d: %w", request.ID.Int64(), err))
			continue
		}
		if err := s.repo.MarkIssueRequestCanceled(ctx, request.ID, s.clock.Now().UTC()); err != nil {
			errs = append(errs, fmt.Errorf("issue request %d: %w", request.ID.Int64(), err))
		}
	}
	return errors.Join(errs...)
}

// UpdateUnusedVouchers refreshes voucher balances in fixed-size ID ranges.
// The first observed divergence from the issued amount marks the voucher as
// claimed and spent.
func (s *service) UpdateUnusedVouchers(ctx context.Context) error {
	minID, maxID, err := s.repo.VoucherIDBounds(ctx)
	if err != nil {
		return err
	}
	if maxID == 0 {
		return nil
	}
	batch := int64(s.payout.Get().BalanceBatchSize)

	credsByKey := make(map[string]secrets.Credentials)
	var errs []error
	for from := minID; from <= maxID; from += batch {
		to := from + batch - 1
		vouchers, err := s.repo.UnusedVouchersInRange(ctx, from, to)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i := range vouchers {
			voucher := &vouchers[i]
			key := fmt.Sprintf("%d/%s", voucher.ProgramID, voucher.Provider)
			creds, ok := credsByKey[key]
			if !ok {
				creds, err = s.secrets.Credentials(ctx, voucher.ProgramID, voucher.Provider)
				if err != nil {
					errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
					continue
				}
				credsByKey[key] = creds
			}

			cents, err := s.client.GetBalance(ctx, creds, voucher.Barcode, voucher.Pin)
			if err != nil {
				errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
				continue
			}
			now := s.clock.Now().UTC()
			voucher.LastRequestedBalance = &cents
			voucher.BalanceRequestedAt = &now
			if cents != voucher.AmountCents {
				voucher.BalanceUsed = true
				voucher.Send = true
			}
			if err := s.repo.UpdateVoucher(ctx, voucher); err != nil {
				errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
			}
		}
	}
	return errors.Join(errs...)
}

// SendWhatsappReminders nudges beneficiaries whose voucher message was never
// claimed, bounded per voucher so nobody is nagged forever.
func (s *service) SendWhatsappReminders(ctx context.Context) error {
	cfg := s.payout.Get()
	cutoff := s.clock.Now().UTC().Add(-cfg.ReminderAfter)
	vouchers, err := s.repo.VouchersNeedingReminder(ctx, cutoff, cfg.MaxReminders)
	if err != nil {
		return err
	}

	var errs []error
	for i := range vouchers {
		voucher := &vouchers[i]
		registration, err := s.registrations.Get(ctx, voucher.ReferenceID, scope.All())
		if err != nil {
			errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
			continue
		}
		amount := fmt.Sprintf("%.2f", float64(voucher.AmountCents)/100)
		if _, err := s.dispatcher.EnqueueMessage(ctx, registration, notification.TemplateVoucherReminder, []string{amount}); err != nil {
			errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
			continue
		}
		voucher.ReminderCount++
		if err := s.repo.UpdateVoucher(ctx, voucher); err != nil {
			errs = append(errs, fmt.Errorf("voucher %s: %w", voucher.Barcode, err))
		}
	}
	return errors.Join(errs...)
}

func (s *service) UnusedVouchers(ctx context.Context) ([]domain.Voucher, error) {
	return s.repo.UnusedVoucherReport(ctx)
}

// randomRefPos draws 5 random bytes and reads them as a hex integer,
// the reference-position format the provider expects at the till.
func randomRefPos() (int64, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(hex.EncodeToString(buf), 16, 64)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
